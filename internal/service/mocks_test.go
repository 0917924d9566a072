package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/notify"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type mockBridge struct{ mock.Mock }

func (m *mockBridge) Forward(ctx context.Context, addr string, amount float64) (domain.BridgeResult, error) {
	args := m.Called(ctx, addr, amount)
	return args.Get(0).(domain.BridgeResult), args.Error(1)
}

func (m *mockBridge) Reverse(ctx context.Context, addr string, amount float64) (domain.BridgeResult, error) {
	args := m.Called(ctx, addr, amount)
	return args.Get(0).(domain.BridgeResult), args.Error(1)
}

type mockWriter struct{ mock.Mock }

func (m *mockWriter) InvokeDeposit(ctx context.Context, addr string, amount *big.Int) (domain.OnchainResult, error) {
	args := m.Called(ctx, addr, amount)
	return args.Get(0).(domain.OnchainResult), args.Error(1)
}

func (m *mockWriter) InvokeWithdraw(ctx context.Context, addr string, amount *big.Int) (domain.OnchainResult, error) {
	args := m.Called(ctx, addr, amount)
	return args.Get(0).(domain.OnchainResult), args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) VerifyTransaction(ctx context.Context, hash string) error {
	return m.Called(ctx, hash).Error(0)
}

type mockWaiter struct{ mock.Mock }

func (m *mockWaiter) WaitForBalance(ctx context.Context, addr string, delta *big.Int) domain.ConvergenceResult {
	return m.Called(ctx, addr, delta).Get(0).(domain.ConvergenceResult)
}

type mockQuoter struct{ mock.Mock }

func (m *mockQuoter) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Quote), args.Error(1)
}

// seqReader returns balances in order, repeating the last one.
type seqReader struct {
	mu       sync.Mutex
	balances []*big.Int
	calls    int
}

func (r *seqReader) ReadBalance(context.Context, string) (*big.Int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if len(r.balances) == 0 {
		return nil, false
	}
	if i >= len(r.balances) {
		i = len(r.balances) - 1
	}
	if r.balances[i] == nil {
		return nil, false
	}
	return new(big.Int).Set(r.balances[i]), true
}

type recordingAlerter struct {
	mu        sync.Mutex
	completed []domain.HistoryRecord
	failures  []notify.Failure
}

func (a *recordingAlerter) OperationCompleted(_ context.Context, _ domain.Mode, rec domain.HistoryRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completed = append(a.completed, rec)
}

func (a *recordingAlerter) OperationFailed(_ context.Context, f notify.Failure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, f)
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = map[string][][]byte{}
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

type quoteSink struct {
	mu     sync.Mutex
	quotes []domain.Quote
}

func (s *quoteSink) Record(q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
}
