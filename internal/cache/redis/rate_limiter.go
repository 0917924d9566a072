package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

//go:embed scripts/fixed_window.lua
var fixedWindowLua string

// RateLimiter implements domain.RateLimiter with a fixed-window counter
// shared by every replica. The first hit in a window sets the expiry, so the
// window resets a fixed period after it opened.
type RateLimiter struct {
	c           *Client
	fixedWindow *redis.Script
	now         func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		c:           c,
		fixedWindow: redis.NewScript(fixedWindowLua),
		now:         time.Now,
	}
}

// Allow counts one request for key and reports whether it fits in limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	result, err := rl.fixedWindow.Run(
		ctx,
		rl.c.rdb,
		[]string{rl.c.Key("ratelimit", key)},
		window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return domain.RateLimitDecision{}, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	count, ttl := int(result[0]), time.Duration(result[1])*time.Millisecond
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   rl.now().Add(ttl),
	}, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
