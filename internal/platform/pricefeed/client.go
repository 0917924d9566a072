// Package pricefeed fetches USD spot prices from a CoinGecko-compatible API.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/platform/breaker"
)

// DefaultBaseURL is the public CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Client looks up prices, consulting an optional cache first.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	cache      domain.PriceCache
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

var _ domain.PriceFeed = (*Client)(nil)

// NewClient creates a price feed client. cache may be nil; prices younger
// than ttl are served from it.
func NewClient(baseURL string, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger = logger.With(slog.String("component", "pricefeed"))
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cb:         breaker.New("pricefeed", time.Minute, logger),
		cache:      cache,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger,
	}
}

// USDPrices returns the USD price of every id. It fails if any id is missing.
func (c *Client) USDPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	var missing []string
	for _, id := range ids {
		if p, ok := c.cached(ctx, id); ok {
			out[id] = p
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, missing)
	})
	if err != nil {
		return nil, fmt.Errorf("pricefeed: %w", err)
	}

	fetched := res.(map[string]float64)
	now := c.now()
	for _, id := range missing {
		p, ok := fetched[id]
		if !ok || p <= 0 {
			return nil, fmt.Errorf("pricefeed: no usd price for %q", id)
		}
		out[id] = p
		if c.cache != nil {
			if err := c.cache.SetPrice(ctx, id, p, now); err != nil {
				c.logger.Debug("price cache write failed", slog.String("id", id), slog.String("error", err.Error()))
			}
		}
	}
	return out, nil
}

func (c *Client) cached(ctx context.Context, id string) (float64, bool) {
	if c.cache == nil || c.ttl <= 0 {
		return 0, false
	}
	p, ts, err := c.cache.GetPrice(ctx, id)
	if err != nil || p <= 0 || c.now().Sub(ts) > c.ttl {
		return 0, false
	}
	return p, true
}

func (c *Client) fetch(ctx context.Context, ids []string) (map[string]float64, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	params := url.Values{}
	params.Set("ids", strings.Join(sorted, ","))
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &domain.UpstreamError{Service: "pricefeed", Status: resp.StatusCode}
	}

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}

	out := make(map[string]float64, len(body))
	for id, v := range body {
		out[id] = v.USD
	}
	return out, nil
}
