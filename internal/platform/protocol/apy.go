// Package protocol reads vault yield from the protocol's public API.
package protocol

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// APYClient returns the vault APY in percent. Any failure yields the
// configured default.
type APYClient struct {
	url        string
	fallback   float64
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.APYSource = (*APYClient)(nil)

// NewAPYClient creates an APYClient. An empty url always returns fallback.
func NewAPYClient(url string, fallback float64, logger *slog.Logger) *APYClient {
	return &APYClient{
		url:        url,
		fallback:   fallback,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "apy")),
	}
}

// APY fetches the current yield.
func (c *APYClient) APY(ctx context.Context) float64 {
	if c.url == "" {
		return c.fallback
	}
	apy, ok := c.fetch(ctx)
	if !ok {
		return c.fallback
	}
	return apy
}

func (c *APYClient) fetch(ctx context.Context) (float64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("apy fetch failed", slog.String("error", err.Error()))
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, false
	}
	return parseAPY(body)
}

// parseAPY accepts a bare number, {"wbtc":{"apy":n}} or {"apy":n}.
func parseAPY(body []byte) (float64, bool) {
	var n float64
	if err := json.Unmarshal(body, &n); err == nil {
		return n, true
	}

	var obj struct {
		WBTC *struct {
			APY *float64 `json:"apy"`
		} `json:"wbtc"`
		APY *float64 `json:"apy"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return 0, false
	}
	if obj.WBTC != nil && obj.WBTC.APY != nil {
		return *obj.WBTC.APY, true
	}
	if obj.APY != nil {
		return *obj.APY, true
	}
	return 0, false
}
