package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// priceKeyTTL bounds how long an unrefreshed price survives in Redis. Readers
// apply their own, shorter freshness check on the stored timestamp.
const priceKeyTTL = time.Hour

// PriceCache implements domain.PriceCache so that replicas share one set of
// price feed lookups.
type PriceCache struct {
	c *Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

type cachedPrice struct {
	USD       float64 `json:"usd"`
	FetchedAt int64   `json:"fetched_at"` // unix nanoseconds
}

// SetPrice stores the latest USD price and fetch time for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error {
	b, err := json.Marshal(cachedPrice{USD: price, FetchedAt: ts.UnixNano()})
	if err != nil {
		return fmt.Errorf("redis: encode price %s: %w", assetID, err)
	}
	if err := pc.c.rdb.Set(ctx, pc.c.Key("price", assetID), b, priceKeyTTL).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", assetID, err)
	}
	return nil
}

// GetPrice returns the cached price and its fetch time, or
// domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, assetID string) (float64, time.Time, error) {
	b, err := pc.c.rdb.Get(ctx, pc.c.Key("price", assetID)).Bytes()
	if err == redis.Nil {
		return 0, time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", assetID, err)
	}

	var cp cachedPrice
	if err := json.Unmarshal(b, &cp); err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: decode price %s: %w", assetID, err)
	}
	return cp.USD, time.Unix(0, cp.FetchedAt), nil
}
