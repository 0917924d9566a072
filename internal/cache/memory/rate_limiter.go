// Package memory provides single-process implementations of the rate limiter
// and event bus used when Redis is not configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window), now: time.Now}
}

// Allow counts one request for key. A window opens on the first request
// after the previous one expired.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (domain.RateLimitDecision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		rl.windows[key] = w
		rl.sweep(now)
	}
	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}

// sweep drops expired windows so per-IP keys do not accumulate.
func (rl *RateLimiter) sweep(now time.Time) {
	if len(rl.windows) < 1024 {
		return
	}
	for k, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, k)
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
