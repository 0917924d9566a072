package domain

import (
	"context"
	"time"
)

// PriceCache stores recently fetched USD prices.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
}

// RateLimitDecision is the outcome of a single rate-limit check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

// EventBus fans out operation events to live subscribers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Locker hands out short-lived exclusive locks shared between replicas.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
