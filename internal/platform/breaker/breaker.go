// Package breaker builds the circuit breakers shared by the upstream clients.
package breaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// New returns a breaker that opens once at least five requests have been
// seen and 60% of them failed. It lets a trial request through after timeout.
func New(name string, timeout time.Duration, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				logger.Warn("upstream seems down, short-circuiting requests", slog.String("breaker", name))
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				logger.Info("probing upstream", slog.String("breaker", name))
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				logger.Info("upstream recovered", slog.String("breaker", name))
			}
		},
	})
}
