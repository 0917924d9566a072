package pricefeed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu sync.Mutex
	m  map[string]struct {
		p  float64
		ts time.Time
	}
}

func newMemCache() *memCache {
	return &memCache{m: map[string]struct {
		p  float64
		ts time.Time
	}{}}
}

func (c *memCache) SetPrice(_ context.Context, id string, p float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = struct {
		p  float64
		ts time.Time
	}{p, ts}
	return nil
}

func (c *memCache) GetPrice(_ context.Context, id string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	if !ok {
		return 0, time.Time{}, io.EOF
	}
	return v.p, v.ts, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestUSDPrices(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000},"ethereum":{"usd":3000}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newMemCache(), time.Minute, discard())
	prices, err := c.USDPrices(context.Background(), []string{"ethereum", "bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, 60000.0, prices["bitcoin"])
	assert.Equal(t, 3000.0, prices["ethereum"])

	// Second lookup is served from the cache.
	_, err = c.USDPrices(context.Background(), []string{"bitcoin", "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestUSDPricesExpiredCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":61000}}`))
	}))
	defer srv.Close()

	cache := newMemCache()
	require.NoError(t, cache.SetPrice(context.Background(), "bitcoin", 50000, time.Now().Add(-time.Hour)))

	c := NewClient(srv.URL, cache, time.Minute, discard())
	prices, err := c.USDPrices(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, 61000.0, prices["bitcoin"])
	assert.Equal(t, int32(1), hits.Load())
}

func TestUSDPricesMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, 0, discard())
	_, err := c.USDPrices(context.Background(), []string{"bitcoin", "starknet"})
	assert.Error(t, err)
}

func TestUSDPricesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, 0, discard())
	_, err := c.USDPrices(context.Background(), []string{"bitcoin"})
	assert.Error(t, err)
}
