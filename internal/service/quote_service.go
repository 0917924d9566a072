package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/metrics"
)

// Quoter computes a quote.
type Quoter interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
}

// QuoteService produces quotes and records them.
type QuoteService struct {
	quoter  Quoter
	history *HistoryService
	log     domain.QuoteLog
	logger  *slog.Logger
}

// NewQuoteService creates a QuoteService. log may be nil.
func NewQuoteService(quoter Quoter, history *HistoryService, log domain.QuoteLog, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		quoter:  quoter,
		history: history,
		log:     log,
		logger:  logger.With(slog.String("component", "quote_service")),
	}
}

// Quote computes a quote, appends a quote record and forwards it to the
// quote log. Recording failures are logged, never returned.
func (s *QuoteService) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	q, err := s.quoter.Quote(ctx, req)
	if err != nil {
		return domain.Quote{}, err
	}

	metrics.ObserveQuote(string(q.FeeSources.BTCL1Fee), string(q.FeeSources.StarknetFee))
	if q.FeeSources.Degraded() {
		s.logger.DebugContext(ctx, "quote used fallback fees",
			slog.String("btc_l1_fee", string(q.FeeSources.BTCL1Fee)),
			slog.String("starknet_fee", string(q.FeeSources.StarknetFee)),
		)
	}

	rec := domain.HistoryRecord{
		Kind:   domain.KindQuote,
		Amount: q.Amount,
		Token:  q.TokenSymbol,
		Batch:  req.Batch,
		Quote:  &q,
	}
	if _, err := s.history.Record(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "record quote failed", slog.String("error", err.Error()))
	}

	if s.log != nil {
		s.log.Record(q)
	}
	return q, nil
}
