package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// QuoteService computes and records quotes.
type QuoteService interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
}

// QuoteHandler serves fee quotes.
type QuoteHandler struct {
	quotes QuoteService
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logHandler(logger, "quote")}
}

type quoteRequest struct {
	Amount amountField `json:"amount"`
	Action string      `json:"action"`
	Batch  bool        `json:"batch"`
	Token  string      `json:"token"`
}

// quoteResponse adds the legacy etaSecs key next to etaSeconds.
type quoteResponse struct {
	domain.Quote
	EtaSecs int `json:"etaSecs"`
}

// Quote returns the fee breakdown for an amount.
// POST /quote
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var body quoteRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidBody)
		return
	}
	action, ok := domain.ParseAction(body.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "action must be deposit or withdraw", CodeInvalidBody)
		return
	}

	q, err := h.quotes.Quote(r.Context(), domain.QuoteRequest{
		Amount: float64(body.Amount),
		Action: action,
		Batch:  body.Batch,
		Token:  body.Token,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, quoteResponse{Quote: q, EtaSecs: q.EtaSeconds})
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "positive amount required", CodeInvalidAmount)
	case errors.Is(err, domain.ErrUnsupportedToken):
		writeError(w, http.StatusBadRequest, "unsupported token", CodeUnsupportedToken)
	default:
		h.logger.ErrorContext(r.Context(), "quote failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "quote_failed", CodeQuoteFailed)
	}
}
