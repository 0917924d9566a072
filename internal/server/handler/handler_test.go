package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/compliance"
	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/service"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type mockQuotes struct{ mock.Mock }

func (m *mockQuotes) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Quote), args.Error(1)
}

type mockOps struct {
	mock.Mock
	mode domain.Mode
}

func (m *mockOps) Mode() domain.Mode { return m.mode }

func (m *mockOps) Deposit(ctx context.Context, req service.OperationRequest) (service.OperationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.OperationResult), args.Error(1)
}

func (m *mockOps) Withdraw(ctx context.Context, req service.OperationRequest) (service.OperationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.OperationResult), args.Error(1)
}

func (m *mockOps) Balance(ctx context.Context, addr string) *big.Int {
	return m.Called(ctx, addr).Get(0).(*big.Int)
}

type fixedAPY float64

func (a fixedAPY) APY(context.Context) float64 { return float64(a) }

type listFunc func(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRecord, error)

func (fn listFunc) List(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	return fn(ctx, f)
}

func do(h http.HandlerFunc, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPreflight(t *testing.T) {
	gate := compliance.NewGate(compliance.Config{
		AllowedCountries: []string{"US"},
		Denylist:         []string{"tb1qbad"},
	}, discard())
	h := NewPreflightHandler(gate, discard())
	us := map[string]string{"X-Country": "US"}

	cases := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
		want    string
	}{
		{"tos", `{"btcAddress":"a","starknetAddress":"b"}`, nil, 400, `{"allowed":false,"reason":"TOS_NOT_ACCEPTED"}`},
		{"geofence", `{"tosAccepted":true,"btcAddress":"a","starknetAddress":"b"}`, map[string]string{"X-Country": "fr"}, 403, `{"allowed":false,"reason":"GEOFENCE"}`},
		{"cloudflare header", `{"tosAccepted":true,"btcAddress":"a","starknetAddress":"b"}`, map[string]string{"CF-IPCountry": "us"}, 200, `{"allowed":true}`},
		{"x-country wins", `{"tosAccepted":true,"btcAddress":"a","starknetAddress":"b"}`, map[string]string{"X-Country": "US", "CF-IPCountry": "FR"}, 200, `{"allowed":true}`},
		{"missing", `{"tosAccepted":true,"btcAddress":"a"}`, map[string]string{"X-Country": "US"}, 400, `{"allowed":false,"reason":"MISSING_ADDRESSES"}`},
		{"denylist", `{"tosAccepted":true,"btcAddress":"tb1qbad","starknetAddress":"b"}`, map[string]string{"X-Country": "US"}, 403, `{"allowed":false,"reason":"KYC_DENYLIST"}`},
		{"tos zero", `{"tosAccepted":0,"btcAddress":"a","starknetAddress":"b"}`, us, 400, `{"allowed":false,"reason":"TOS_NOT_ACCEPTED"}`},
		{"tos empty string", `{"tosAccepted":"","btcAddress":"a","starknetAddress":"b"}`, us, 400, `{"allowed":false,"reason":"TOS_NOT_ACCEPTED"}`},
		{"tos null", `{"tosAccepted":null,"btcAddress":"a","starknetAddress":"b"}`, us, 400, `{"allowed":false,"reason":"TOS_NOT_ACCEPTED"}`},
		{"tos false", `{"tosAccepted":false,"btcAddress":"a","starknetAddress":"b"}`, us, 400, `{"allowed":false,"reason":"TOS_NOT_ACCEPTED"}`},
		{"tos one", `{"tosAccepted":1,"btcAddress":"a","starknetAddress":"b"}`, us, 200, `{"allowed":true}`},
		{"tos yes", `{"tosAccepted":"yes","btcAddress":"a","starknetAddress":"b"}`, us, 200, `{"allowed":true}`},
		{"numeric address", `{"tosAccepted":true,"btcAddress":42,"starknetAddress":"b"}`, us, 200, `{"allowed":true}`},
		{"null address", `{"tosAccepted":true,"btcAddress":null,"starknetAddress":"b"}`, us, 400, `{"allowed":false,"reason":"MISSING_ADDRESSES"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h.Preflight, http.MethodPost, "/preflight", tc.body, tc.headers)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestPreflightMalformedBody(t *testing.T) {
	h := NewPreflightHandler(compliance.NewGate(compliance.Config{}, discard()), discard())
	for _, body := range []string{`{"tosAccepted":`, `[1,2]`, `not json`} {
		rec := do(h.Preflight, http.MethodPost, "/preflight", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"allowed":false,"reason":"TOS_NOT_ACCEPTED"}`, rec.Body.String(), body)
	}
}

func TestQuote(t *testing.T) {
	q := &mockQuotes{}
	q.On("Quote", mock.Anything, domain.QuoteRequest{Amount: 0.5, Action: domain.ActionWithdraw, Batch: true}).
		Return(domain.Quote{TokenSymbol: "WBTC", Amount: 0.5, TotalFee: 0.002, EtaSeconds: 900, BatchEligible: true}, nil)
	h := NewQuoteHandler(q, discard())

	rec := do(h.Quote, http.MethodPost, "/quote", `{"amount":"0.5","action":"withdraw","batch":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "WBTC", body["tokenSymbol"])
	assert.Equal(t, 900.0, body["etaSecs"])
	assert.Equal(t, 900.0, body["etaSeconds"])
	assert.Equal(t, true, body["batchEligible"])
	q.AssertExpectations(t)
}

func TestQuoteErrors(t *testing.T) {
	q := &mockQuotes{}
	q.On("Quote", mock.Anything, mock.MatchedBy(func(r domain.QuoteRequest) bool { return r.Token == "DOGE" })).
		Return(domain.Quote{}, fmt.Errorf("pricing: %w", domain.ErrUnsupportedToken))
	q.On("Quote", mock.Anything, mock.MatchedBy(func(r domain.QuoteRequest) bool { return r.Token == "BOOM" })).
		Return(domain.Quote{}, errors.New("boom"))
	q.On("Quote", mock.Anything, mock.Anything).
		Return(domain.Quote{}, fmt.Errorf("pricing: %w", domain.ErrInvalidInput))
	h := NewQuoteHandler(q, discard())

	rec := do(h.Quote, http.MethodPost, "/quote", `{"amount":"abc"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"positive amount required","code":"INVALID_AMOUNT"}`, rec.Body.String())

	rec = do(h.Quote, http.MethodPost, "/quote", `{"amount":1,"token":"DOGE"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_TOKEN", decode(t, rec)["code"])

	rec = do(h.Quote, http.MethodPost, "/quote", `{"amount":1,"token":"BOOM"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"quote_failed","code":"QUOTE_FAILED"}`, rec.Body.String())

	rec = do(h.Quote, http.MethodPost, "/quote", `{"amount":1,"action":"swap"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepositOwner(t *testing.T) {
	ops := &mockOps{mode: domain.ModeOwner}
	converged := true
	ops.On("Deposit", mock.Anything, service.OperationRequest{BTCAddress: "tb1q", StarknetAddress: "0x1", Amount: 0.1}).
		Return(service.OperationResult{
			Mode:      domain.ModeOwner,
			Bridge:    domain.BridgeResult{TransactionID: "sim-bridge-1", Address: "tb1q", Amount: 0.1},
			Onchain:   &domain.OnchainResult{TransactionHash: "0xabc", Entrypoint: "deposit_for"},
			Balance:   big.NewInt(10_000_000),
			Converged: &converged,
		}, nil)
	h := NewOperationHandler(ops, discard())

	rec := do(h.Deposit, http.MethodPost, "/deposit", `{"btcAddress":"tb1q","starknetAddress":"0x1","amount":0.1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"bridge": {"transactionId":"sim-bridge-1","txId":"sim-bridge-1","btcAddress":"tb1q","amount":0.1},
		"onchainTx": {"transactionHash":"0xabc","entrypoint":"deposit_for"},
		"balance": 10000000,
		"converged": true,
		"mode": "owner"
	}`, rec.Body.String())
}

func TestDepositNonCustodial(t *testing.T) {
	ops := &mockOps{mode: domain.ModeNonCustodial}
	ops.On("Deposit", mock.Anything, mock.Anything).Return(service.OperationResult{
		Mode:        domain.ModeNonCustodial,
		Bridge:      domain.BridgeResult{TransactionID: "b"},
		Instruction: "Call deposit_btc(amount) from your Starknet wallet",
	}, nil)
	h := NewOperationHandler(ops, discard())

	rec := do(h.Deposit, http.MethodPost, "/deposit", `{"btcAddress":"tb1q","starknetAddress":"0x1","amount":1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "non_custodial", body["mode"])
	assert.Equal(t, "Call deposit_btc(amount) from your Starknet wallet", body["instruction"])
	assert.NotContains(t, body, "onchainTx")
	assert.NotContains(t, body, "balance")
}

func TestOperationErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		want   string
	}{
		{"missing address", `{"starknetAddress":"0x1","amount":1}`, service.ErrMissingFields, 400,
			`{"error":"btcAddress, starknetAddress and positive amount required","code":"MISSING_ADDRESSES"}`},
		{"bad amount", `{"btcAddress":"a","starknetAddress":"0x1","amount":-1}`, service.ErrMissingFields, 400,
			`{"error":"btcAddress, starknetAddress and positive amount required","code":"INVALID_AMOUNT"}`},
		{"tx hash", `{"btcAddress":"a","starknetAddress":"0x1","amount":1}`, domain.ErrTxHashRequired, 400,
			`{"error":"onchainTxHash required in non-custodial mode","code":"TX_HASH_REQUIRED"}`},
		{"tx reused", `{"btcAddress":"a","starknetAddress":"0x1","amount":1,"onchainTxHash":"0x9"}`, domain.ErrTxHashReused, 409,
			`{"error":"onchainTxHash already used","code":"TX_HASH_REUSED"}`},
		{"verification", `{"btcAddress":"a","starknetAddress":"0x1","amount":1,"onchainTxHash":"0x9"}`, fmt.Errorf("starknet: %w", domain.ErrVerificationFailed), 502,
			`{"error":"onchainTxHash is not a vault transaction","code":"TX_NOT_FROM_CONTRACT"}`},
		{"not configured", `{"btcAddress":"a","starknetAddress":"0x1","amount":1}`, fmt.Errorf("starknet: %w", domain.ErrNotConfigured), 500,
			`{"error":"Starknet account or contract env not configured","code":"CHAIN_NOT_CONFIGURED"}`},
		{"bridge", `{"btcAddress":"a","starknetAddress":"0x1","amount":1}`, &domain.UpstreamError{Service: "atomiq", Status: 502, Message: "Request failed with status code 502"}, 500,
			`{"error":"Request failed with status code 502","code":"BRIDGE_FAILED"}`},
		{"chain", `{"btcAddress":"a","starknetAddress":"0x1","amount":1}`, fmt.Errorf("starknet: add invoke: %w", &domain.UpstreamError{Service: "starknet", Message: "Invalid transaction nonce"}), 500,
			`{"error":"Invalid transaction nonce","code":"CHAIN_INVOKE_FAILED"}`},
		{"internal", `{"btcAddress":"a","starknetAddress":"0x1","amount":1}`, errors.New("history_service: append: disk full"), 500,
			`{"error":"Withdraw failed","code":"INTERNAL"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ops := &mockOps{mode: domain.ModeNonCustodial}
			ops.On("Withdraw", mock.Anything, mock.Anything).Return(service.OperationResult{}, tc.err)
			h := NewOperationHandler(ops, discard())

			rec := do(h.Withdraw, http.MethodPost, "/withdraw", tc.body, nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestBalance(t *testing.T) {
	ops := &mockOps{}
	ops.On("Balance", mock.Anything, "0x1").Return(big.NewInt(42))
	ops.On("Balance", mock.Anything, "").Return(new(big.Int))
	h := NewOperationHandler(ops, discard())

	rec := do(h.Balance, http.MethodGet, "/balance", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"btcAddress or starknetAddress required","code":"MISSING_ADDRESSES"}`, rec.Body.String())

	rec = do(h.Balance, http.MethodGet, "/balance?starknetAddress=0x1", "", nil)
	assert.JSONEq(t, `{"balance":42}`, rec.Body.String())

	rec = do(h.Balance, http.MethodGet, "/balance?btcAddress=tb1q", "", nil)
	assert.JSONEq(t, `{"balance":0}`, rec.Body.String())
}

func TestAPYAndHistory(t *testing.T) {
	var got domain.HistoryFilter
	h := NewInfoHandler(fixedAPY(8.5), listFunc(func(_ context.Context, f domain.HistoryFilter) ([]domain.HistoryRecord, error) {
		got = f
		if f.BTCAddress == "none" {
			return nil, nil
		}
		return []domain.HistoryRecord{{ID: "1", Kind: domain.KindDeposit, BTCAddress: f.BTCAddress}}, nil
	}), discard())

	rec := do(h.APY, http.MethodGet, "/apy", "", nil)
	assert.JSONEq(t, `{"apy":8.5}`, rec.Body.String())

	rec = do(h.History, http.MethodGet, "/history?btcAddress=tb1q&starknetAddress=0x1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.HistoryFilter{BTCAddress: "tb1q", StarknetAddress: "0x1"}, got)
	var body struct {
		History []domain.HistoryRecord `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	assert.Equal(t, domain.KindDeposit, body.History[0].Kind)

	rec = do(h.History, http.MethodGet, "/history?btcAddress=none", "", nil)
	assert.JSONEq(t, `{"history":[]}`, rec.Body.String())
}

func TestAmountField(t *testing.T) {
	var v struct {
		A amountField `json:"a"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":" 1.5 "}`), &v))
	assert.Equal(t, amountField(1.5), v.A)
	require.NoError(t, json.Unmarshal([]byte(`{"a":2}`), &v))
	assert.Equal(t, amountField(2), v.A)
	require.NoError(t, json.Unmarshal([]byte(`{"a":true}`), &v))
	assert.True(t, math.IsNaN(float64(v.A)))
}
