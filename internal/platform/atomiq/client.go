// Package atomiq is the client for the Atomiq bridge partner API.
package atomiq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/platform/breaker"
)

// Config configures the partner client.
type Config struct {
	BaseURL  string
	APIKey   string
	Simulate bool
	Timeout  time.Duration
}

// Client moves BTC through the partner. In simulate mode, or when no base
// URL is configured, no network calls are made.
type Client struct {
	baseURL    string
	apiKey     string
	simulate   bool
	httpClient *http.Client
	feeBreaker *gobreaker.CircuitBreaker
	now        func() time.Time
	logger     *slog.Logger
}

var (
	_ domain.Bridge          = (*Client)(nil)
	_ domain.BTCFeeEstimator = (*Client)(nil)
)

// NewClient creates a partner client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger = logger.With(slog.String("component", "atomiq"))
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		simulate:   cfg.Simulate || strings.TrimSpace(cfg.BaseURL) == "",
		httpClient: &http.Client{Timeout: timeout},
		feeBreaker: breaker.New("atomiq-fee", 30*time.Second, logger),
		now:        time.Now,
		logger:     logger,
	}
}

// Simulated reports whether the client synthesises results.
func (c *Client) Simulated() bool { return c.simulate }

// Forward bridges amount BTC from btcAddress into the target chain.
func (c *Client) Forward(ctx context.Context, btcAddress string, amount float64) (domain.BridgeResult, error) {
	return c.transfer(ctx, "/bridge", "sim-bridge", btcAddress, amount)
}

// Reverse redeems amount back to btcAddress.
func (c *Client) Reverse(ctx context.Context, btcAddress string, amount float64) (domain.BridgeResult, error) {
	return c.transfer(ctx, "/redeem", "sim-redeem", btcAddress, amount)
}

type transferRequest struct {
	BTCAddress string  `json:"btcAddress"`
	Amount     float64 `json:"amount"`
}

// transferResponse accepts the id field names the partner has used.
type transferResponse struct {
	TxID          string `json:"txId"`
	TransactionID string `json:"transactionId"`
	ID            string `json:"id"`
}

func (c *Client) transfer(ctx context.Context, path, simPrefix, btcAddress string, amount float64) (domain.BridgeResult, error) {
	if c.simulate {
		id := fmt.Sprintf("%s-%d", simPrefix, c.now().UnixMilli())
		raw, _ := json.Marshal(map[string]any{"txId": id, "simulated": true})
		c.logger.Info("simulated partner call", slog.String("path", path), slog.String("tx_id", id))
		return domain.BridgeResult{TransactionID: id, Address: btcAddress, Amount: amount, Raw: raw}, nil
	}

	body, err := c.do(ctx, http.MethodPost, path, transferRequest{BTCAddress: btcAddress, Amount: amount})
	if err != nil {
		return domain.BridgeResult{}, fmt.Errorf("atomiq: %s: %w", strings.TrimPrefix(path, "/"), err)
	}

	var resp transferResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BridgeResult{}, fmt.Errorf("atomiq: decode %s response: %w", path, err)
	}
	id := resp.TxID
	if id == "" {
		id = resp.TransactionID
	}
	if id == "" {
		id = resp.ID
	}

	return domain.BridgeResult{
		TransactionID: id,
		Address:       btcAddress,
		Amount:        amount,
		Raw:           json.RawMessage(body),
	}, nil
}

// EstimateFee asks the partner for its L1 fee in BTC. Calls go through a
// circuit breaker so a dead partner does not slow every quote down.
func (c *Client) EstimateFee(ctx context.Context, amount float64, action domain.Action) (float64, error) {
	if c.simulate {
		return 0, fmt.Errorf("atomiq: fee estimate: %w", domain.ErrNotConfigured)
	}

	out, err := c.feeBreaker.Execute(func() (interface{}, error) {
		params := url.Values{}
		params.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
		params.Set("action", string(action))

		body, err := c.do(ctx, http.MethodGet, "/fee?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var resp struct {
			Fee json.Number `json:"fee"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode fee: %w", err)
		}
		fee, err := resp.Fee.Float64()
		if err != nil || fee <= 0 {
			return nil, fmt.Errorf("fee missing from response")
		}
		return fee, nil
	})
	if err != nil {
		return 0, fmt.Errorf("atomiq: fee estimate: %w", err)
	}
	return out.(float64), nil
}

// do sends a request to the partner and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "atomiq", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// statusError maps a non-2xx partner response to an UpstreamError carrying
// the partner's own message when it sent one.
func statusError(status int, body []byte) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error
	if msg == "" {
		msg = apiErr.Message
	}
	if msg == "" {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		msg = fmt.Sprintf("Request failed with status code %d", status)
		if snippet != "" {
			msg += ": " + snippet
		}
	}
	return &domain.UpstreamError{Service: "atomiq", Status: status, Message: msg}
}
