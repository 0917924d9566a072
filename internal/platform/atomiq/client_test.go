package atomiq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSimulateWhenNoBaseURL(t *testing.T) {
	c := NewClient(Config{}, discard())
	c.now = func() time.Time { return time.UnixMilli(1700000000123) }

	require.True(t, c.Simulated())

	res, err := c.Forward(context.Background(), "bc1qaddr", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "sim-bridge-1700000000123", res.TransactionID)
	assert.Equal(t, "bc1qaddr", res.Address)
	assert.Equal(t, 0.5, res.Amount)

	res, err = c.Reverse(context.Background(), "bc1qaddr", 0.25)
	require.NoError(t, err)
	assert.Equal(t, "sim-redeem-1700000000123", res.TransactionID)
	assert.Equal(t, 0.25, res.Amount)
}

func TestSimulateFlagSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Simulate: true}, discard())
	_, err := c.Forward(context.Background(), "a", 1)
	require.NoError(t, err)
	assert.Zero(t, hits.Load())
}

func TestForwardLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bridge", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body transferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bc1qaddr", body.BTCAddress)
		assert.Equal(t, 0.5, body.Amount)

		_, _ = w.Write([]byte(`{"txId":"atq-1","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, discard())
	res, err := c.Forward(context.Background(), "bc1qaddr", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "atq-1", res.TransactionID)
	assert.JSONEq(t, `{"txId":"atq-1","status":"pending"}`, string(res.Raw))
}

func TestReverseSurfacesPartnerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/redeem", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"liquidity exhausted"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, discard())
	_, err := c.Reverse(context.Background(), "bc1qaddr", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))

	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusBadGateway, upErr.Status)
	assert.Equal(t, "liquidity exhausted", upErr.Message)
}

func TestStatusErrorWithoutJSON(t *testing.T) {
	err := statusError(500, []byte("oops"))
	assert.Equal(t, "Request failed with status code 500: oops", err.Error())
}

func TestEstimateFee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fee", r.URL.Path)
		assert.Equal(t, "0.25", r.URL.Query().Get("amount"))
		assert.Equal(t, "withdraw", r.URL.Query().Get("action"))
		_, _ = w.Write([]byte(`{"fee":0.00015}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, discard())
	fee, err := c.EstimateFee(context.Background(), 0.25, domain.ActionWithdraw)
	require.NoError(t, err)
	assert.Equal(t, 0.00015, fee)
}

func TestEstimateFeeBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, discard())
	for i := 0; i < 10; i++ {
		_, err := c.EstimateFee(context.Background(), 1, domain.ActionDeposit)
		require.Error(t, err)
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestEstimateFeeSimulated(t *testing.T) {
	c := NewClient(Config{}, discard())
	_, err := c.EstimateFee(context.Background(), 1, domain.ActionDeposit)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
