package service

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/metrics"
)

// Poller waits for an on-chain balance to reflect a submitted transaction.
type Poller struct {
	reader   domain.ChainReader
	maxWait  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller. Zero durations default to 120s and 3s.
func NewPoller(reader domain.ChainReader, maxWait, interval time.Duration, logger *slog.Logger) *Poller {
	if maxWait <= 0 {
		maxWait = 120 * time.Second
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		reader:   reader,
		maxWait:  maxWait,
		interval: interval,
		logger:   logger.With(slog.String("component", "poller")),
	}
}

// WaitForBalance captures a baseline, then re-reads every interval until the
// balance reaches baseline+expectedDelta or the budget runs out. On timeout
// it returns the last observed balance with Converged=false. A failed
// baseline read counts as zero.
func (p *Poller) WaitForBalance(ctx context.Context, addr string, expectedDelta *big.Int) domain.ConvergenceResult {
	if expectedDelta == nil {
		expectedDelta = new(big.Int)
	}
	deadline := time.Now().Add(p.maxWait)

	baseline, ok := p.reader.ReadBalance(ctx, addr)
	if !ok {
		baseline = new(big.Int)
	}
	target := new(big.Int).Add(baseline, expectedDelta)

	res := domain.ConvergenceResult{Baseline: baseline, Balance: baseline}
	for time.Now().Before(deadline) {
		current, ok := p.reader.ReadBalance(ctx, addr)
		res.Attempts++
		if ok {
			res.Balance = current
			if current.Cmp(target) >= 0 {
				res.Converged = true
				metrics.ObservePoll(true)
				return res
			}
		}

		select {
		case <-ctx.Done():
			p.logger.Warn("balance poll cancelled", slog.String("addr", addr), slog.Int("attempts", res.Attempts))
			metrics.ObservePoll(false)
			return res
		case <-time.After(p.interval):
		}
	}

	if final, ok := p.reader.ReadBalance(ctx, addr); ok {
		res.Balance = final
		res.Converged = final.Cmp(target) >= 0
	}
	res.Attempts++
	if !res.Converged {
		p.logger.Warn("balance did not converge",
			slog.String("addr", addr),
			slog.String("baseline", baseline.String()),
			slog.String("expected_delta", expectedDelta.String()),
			slog.String("last", res.Balance.String()),
			slog.Int("attempts", res.Attempts),
		)
	}
	metrics.ObservePoll(res.Converged)
	return res
}
