package starknet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/shuttle/internal/crypto"
	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Signer produces the account signature for an invoke transaction.
type Signer interface {
	SignInvoke(ctx context.Context, chainID string, txn InvokeTxn) ([]string, error)
}

// RemoteSigner delegates signing to an HTTP signing service that holds the
// owner account key. Requests are authenticated with HMAC headers.
type RemoteSigner struct {
	endpoint   string
	path       string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

var _ Signer = (*RemoteSigner)(nil)

// NewRemoteSigner creates a RemoteSigner posting to endpoint.
func NewRemoteSigner(endpoint string, auth *crypto.HMACAuth) (*RemoteSigner, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("starknet: signer url: %w", err)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return &RemoteSigner{
		endpoint:   endpoint,
		path:       path,
		auth:       auth,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type signRequest struct {
	ChainID     string    `json:"chainId"`
	Transaction InvokeTxn `json:"transaction"`
}

type signResponse struct {
	Signature []string `json:"signature"`
	Error     string   `json:"error"`
}

// SignInvoke posts the unsigned transaction and returns the signature felts.
func (s *RemoteSigner) SignInvoke(ctx context.Context, chainID string, txn InvokeTxn) ([]string, error) {
	body, err := json.Marshal(signRequest{ChainID: chainID, Transaction: txn})
	if err != nil {
		return nil, fmt.Errorf("starknet: marshal sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("starknet: create sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.auth.Headers(http.MethodPost, s.path, string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("starknet: sign: %w: %v", domain.ErrSigningFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("starknet: read sign response: %w", err)
	}

	var out signResponse
	_ = json.Unmarshal(respBody, &out)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("starknet: sign: %w: HTTP %d %s", domain.ErrSigningFailed, resp.StatusCode, out.Error)
	}
	if len(out.Signature) == 0 {
		return nil, fmt.Errorf("starknet: sign: %w: empty signature", domain.ErrSigningFailed)
	}
	return out.Signature, nil
}
