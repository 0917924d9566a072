// Package client is a typed HTTP client for the bridge API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// APIError is a non-2xx API response.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// PreflightRequest is the body of POST /preflight. Country is sent as the
// X-Country header.
type PreflightRequest struct {
	TOSAccepted     bool   `json:"tosAccepted"`
	BTCAddress      string `json:"btcAddress"`
	StarknetAddress string `json:"starknetAddress"`
	Country         string `json:"-"`
}

// QuoteRequest is the body of POST /quote.
type QuoteRequest struct {
	Amount float64       `json:"amount"`
	Action domain.Action `json:"action,omitempty"`
	Batch  bool          `json:"batch,omitempty"`
	Token  string        `json:"token,omitempty"`
}

// OperationRequest is the body of POST /deposit and POST /withdraw.
type OperationRequest struct {
	BTCAddress      string  `json:"btcAddress"`
	StarknetAddress string  `json:"starknetAddress"`
	Amount          float64 `json:"amount"`
	Batch           bool    `json:"batch,omitempty"`
	Token           string  `json:"token,omitempty"`
	OnchainTxHash   string  `json:"onchainTxHash,omitempty"`
}

// BridgeLeg is the partner result echoed by deposit and withdraw.
type BridgeLeg struct {
	TransactionID string  `json:"transactionId"`
	BTCAddress    string  `json:"btcAddress"`
	Amount        float64 `json:"amount"`
}

// OperationResponse is the result of a deposit or withdraw.
type OperationResponse struct {
	Bridge      BridgeLeg             `json:"bridge"`
	OnchainTx   *domain.OnchainResult `json:"onchainTx,omitempty"`
	Balance     *big.Int              `json:"balance,omitempty"`
	Converged   *bool                 `json:"converged,omitempty"`
	Instruction string                `json:"instruction,omitempty"`
	Mode        domain.Mode           `json:"mode"`
}

// Client talks to one API base URL.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. apiKey may be empty. Owner-mode operations can take
// minutes, so the timeout should cover the chain poll window.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Preflight runs the compliance gate. A denial is returned as a decision,
// not an error.
func (c *Client) Preflight(ctx context.Context, req PreflightRequest) (domain.PreflightDecision, error) {
	var out domain.PreflightDecision
	hdr := map[string]string{}
	if req.Country != "" {
		hdr["X-Country"] = req.Country
	}
	status, body, err := c.do(ctx, http.MethodPost, "/preflight", req, hdr)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("client: decode preflight (%d): %w", status, err)
	}
	return out, nil
}

// Quote fetches a fee quote.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (domain.Quote, error) {
	var out domain.Quote
	err := c.call(ctx, http.MethodPost, "/quote", req, &out)
	return out, err
}

// Deposit runs a deposit.
func (c *Client) Deposit(ctx context.Context, req OperationRequest) (OperationResponse, error) {
	var out OperationResponse
	err := c.call(ctx, http.MethodPost, "/deposit", req, &out)
	return out, err
}

// Withdraw runs a withdraw.
func (c *Client) Withdraw(ctx context.Context, req OperationRequest) (OperationResponse, error) {
	var out OperationResponse
	err := c.call(ctx, http.MethodPost, "/withdraw", req, &out)
	return out, err
}

// Balance returns the vault balance in token base units.
func (c *Client) Balance(ctx context.Context, btcAddress, starknetAddress string) (*big.Int, error) {
	q := url.Values{}
	if btcAddress != "" {
		q.Set("btcAddress", btcAddress)
	}
	if starknetAddress != "" {
		q.Set("starknetAddress", starknetAddress)
	}
	var out struct {
		Balance *big.Int `json:"balance"`
	}
	if err := c.call(ctx, http.MethodGet, "/balance?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Balance == nil {
		out.Balance = new(big.Int)
	}
	return out.Balance, nil
}

// APY returns the vault yield in percent.
func (c *Client) APY(ctx context.Context) (float64, error) {
	var out struct {
		APY float64 `json:"apy"`
	}
	err := c.call(ctx, http.MethodGet, "/apy", nil, &out)
	return out.APY, err
}

// History lists records matching the filter.
func (c *Client) History(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	q := url.Values{}
	if filter.BTCAddress != "" {
		q.Set("btcAddress", filter.BTCAddress)
	}
	if filter.StarknetAddress != "" {
		q.Set("starknetAddress", filter.StarknetAddress)
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		History []domain.HistoryRecord `json:"history"`
	}
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out.History, err
}

// call performs a request and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, method, path string, reqBody, out any) error {
	status, body, err := c.do(ctx, method, path, reqBody, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		apiErr := &APIError{Status: status}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, hdr map[string]string) (int, []byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("client: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("client: create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("client: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
