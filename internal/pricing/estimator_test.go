package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

type mockBTCFees struct{ mock.Mock }

func (m *mockBTCFees) EstimateFee(ctx context.Context, amount float64, action domain.Action) (float64, error) {
	args := m.Called(ctx, amount, action)
	return args.Get(0).(float64), args.Error(1)
}

type mockChainFees struct{ mock.Mock }

func (m *mockChainFees) EstimateInvokeFee(ctx context.Context, entrypoint, user string, amount *big.Int) (domain.ChainFeeEstimate, error) {
	args := m.Called(ctx, entrypoint, user, amount)
	return args.Get(0).(domain.ChainFeeEstimate), args.Error(1)
}

type mockPrices struct{ mock.Mock }

func (m *mockPrices) USDPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	args := m.Called(ctx, ids)
	p, _ := args.Get(0).(map[string]float64)
	return p, args.Error(1)
}

func testConfig() Config {
	return Config{
		MarginBps:          50,
		BatchDiscountBps:   10,
		MinDeposit:         0.001,
		DefaultBTCL1Fee:    0.0001,
		DefaultStarknetFee: 0.00002,
		EtaSeconds:         120,
		BatchEtaSeconds:    900,
		DefaultToken:       "WBTC",
		Entrypoint:         "deposit_btc",
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestQuoteDefaults(t *testing.T) {
	e := NewEstimator(testConfig(), nil, nil, nil, discard())

	q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 0.5})
	require.NoError(t, err)

	assert.Equal(t, "WBTC", q.TokenSymbol)
	assert.Equal(t, domain.ActionDeposit, q.Action)
	assert.InDelta(t, 0.0001, q.BTCL1Fee, 1e-12)
	assert.InDelta(t, 0.00002, q.StarknetFee, 1e-12)
	assert.InDelta(t, 0.0025, q.MarginFee, 1e-12)
	assert.Zero(t, q.BatchDiscount)
	assert.InDelta(t, 0.00262, q.TotalFee, 1e-12)
	assert.Equal(t, 0.5, q.MinEnforced)
	assert.Equal(t, 120, q.EtaSeconds)
	assert.True(t, q.BatchEligible)
	assert.Equal(t, domain.FeeFallback, q.FeeSources.BTCL1Fee)
	assert.Equal(t, domain.FeeFallback, q.FeeSources.StarknetFee)
	assert.True(t, q.FeeSources.Degraded())
}

func TestQuoteInvariants(t *testing.T) {
	e := NewEstimator(testConfig(), nil, nil, nil, discard())
	for _, amt := range []float64{0.00001, 0.0005, 0.001, 0.3, 2, 150} {
		for _, batch := range []bool{false, true} {
			q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: amt, Batch: batch})
			require.NoError(t, err)

			assert.InDelta(t, q.BTCL1Fee+q.StarknetFee+q.MarginFee-q.BatchDiscount, q.TotalFee, 1e-12)
			if amt > 0.001 {
				assert.Equal(t, amt, q.MinEnforced)
			} else {
				assert.Equal(t, 0.001, q.MinEnforced)
			}
			if batch {
				assert.Equal(t, 900, q.EtaSeconds)
				assert.InDelta(t, amt*10/10000, q.BatchDiscount, 1e-12)
			} else {
				assert.Equal(t, 120, q.EtaSeconds)
			}
		}
	}
}

func TestQuoteRejectsBadInput(t *testing.T) {
	e := NewEstimator(testConfig(), nil, nil, nil, discard())

	for _, amt := range []float64{0, -1} {
		_, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: amt})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}

	_, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 1, Token: "DOGE"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedToken)
}

func TestNegativeTotalIsNotFlooredByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.BatchDiscountBps = 500
	e := NewEstimator(cfg, nil, nil, nil, discard())

	q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 1, Batch: true})
	require.NoError(t, err)
	assert.Less(t, q.TotalFee, 0.0)
	assert.False(t, q.FeeFloorApplied)

	cfg.FloorTotalFee = true
	e = NewEstimator(cfg, nil, nil, nil, discard())
	q, err = e.Quote(context.Background(), domain.QuoteRequest{Amount: 1, Batch: true})
	require.NoError(t, err)
	assert.Zero(t, q.TotalFee)
	assert.True(t, q.FeeFloorApplied)
}

func TestQuoteUsesPartnerFee(t *testing.T) {
	btc := new(mockBTCFees)
	btc.On("EstimateFee", mock.Anything, 0.2, domain.ActionWithdraw).Return(0.0003, nil)

	e := NewEstimator(testConfig(), btc, nil, nil, discard())
	q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 0.2, Action: domain.ActionWithdraw})
	require.NoError(t, err)

	assert.Equal(t, 0.0003, q.BTCL1Fee)
	assert.Equal(t, domain.FeeEstimated, q.FeeSources.BTCL1Fee)
	btc.AssertExpectations(t)
}

func TestQuotePartnerFailureFallsBack(t *testing.T) {
	btc := new(mockBTCFees)
	btc.On("EstimateFee", mock.Anything, mock.Anything, mock.Anything).Return(0.0, errors.New("boom"))

	e := NewEstimator(testConfig(), btc, nil, nil, discard())
	q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.0001, q.BTCL1Fee)
	assert.Equal(t, domain.FeeFallback, q.FeeSources.BTCL1Fee)
}

func TestQuoteConvertsChainFee(t *testing.T) {
	chain := new(mockChainFees)
	// 0.001 ETH
	chain.On("EstimateInvokeFee", mock.Anything, "deposit_btc", "", big.NewInt(50_000_000)).
		Return(domain.ChainFeeEstimate{OverallFee: big.NewInt(1_000_000_000_000_000), Unit: "WEI"}, nil)

	prices := new(mockPrices)
	prices.On("USDPrices", mock.Anything, []string{"ethereum", "bitcoin"}).
		Return(map[string]float64{"ethereum": 3000, "bitcoin": 60000}, nil)

	e := NewEstimator(testConfig(), nil, chain, prices, discard())
	q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 0.5})
	require.NoError(t, err)

	// 0.001 ETH * 3000 / 60000 = 0.00005 BTC
	assert.InDelta(t, 0.00005, q.StarknetFee, 1e-12)
	assert.Equal(t, domain.FeeEstimated, q.FeeSources.StarknetFee)
	chain.AssertExpectations(t)
	prices.AssertExpectations(t)
}

func TestQuoteChainFeeFallback(t *testing.T) {
	chain := new(mockChainFees)
	chain.On("EstimateInvokeFee", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ChainFeeEstimate{OverallFee: big.NewInt(10), Unit: "FRI"}, nil)

	prices := new(mockPrices)
	prices.On("USDPrices", mock.Anything, mock.Anything).Return(nil, errors.New("feed down"))

	e := NewEstimator(testConfig(), nil, chain, prices, discard())
	q, err := e.Quote(context.Background(), domain.QuoteRequest{Amount: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.00002, q.StarknetFee)
	assert.Equal(t, domain.FeeFallback, q.FeeSources.StarknetFee)
}

func TestTokenUnits(t *testing.T) {
	wbtc, err := LookupToken("", "wbtc")
	require.NoError(t, err)
	assert.Equal(t, "WBTC", wbtc.Symbol)
	assert.Equal(t, big.NewInt(150_000_000), wbtc.ToBaseUnits(1.5))
	assert.Equal(t, big.NewInt(1), wbtc.ToBaseUnits(0.00000001))
	assert.Equal(t, 1.5, wbtc.FromBaseUnits(big.NewInt(150_000_000)))
	assert.Zero(t, wbtc.FromBaseUnits(nil))

	tbtc, err := LookupToken("tbtc", "WBTC")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("250000000000000000", 10)
	assert.Equal(t, want, tbtc.ToBaseUnits(0.25))
}

func TestConvertFeeNeedsPrices(t *testing.T) {
	_, err := ConvertFee(big.NewInt(1), 0, 1)
	assert.Error(t, err)
}
