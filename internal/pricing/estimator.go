// Package pricing computes bridge fee quotes.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Config holds the quote parameters.
type Config struct {
	MarginBps          float64
	BatchDiscountBps   float64
	MinDeposit         float64
	DefaultBTCL1Fee    float64
	DefaultStarknetFee float64
	EtaSeconds         int
	BatchEtaSeconds    int
	FloorTotalFee      bool
	DefaultToken       string
	// Entrypoint is the vault function whose invoke fee is estimated.
	Entrypoint string
	// EstimateUser is passed as the user argument of the estimated call. It
	// is usually the owner account address.
	EstimateUser string
}

// native fee assets by the unit the node reports.
var feeAssets = map[string]string{
	"WEI": "ethereum",
	"FRI": "starknet",
}

// Estimator produces quotes. The three upstream collaborators are optional;
// when one is nil or fails the corresponding component uses its default.
type Estimator struct {
	cfg    Config
	btc    domain.BTCFeeEstimator
	chain  domain.ChainFeeEstimator
	prices domain.PriceFeed
	logger *slog.Logger
}

// NewEstimator creates an Estimator.
func NewEstimator(cfg Config, btc domain.BTCFeeEstimator, chain domain.ChainFeeEstimator, prices domain.PriceFeed, logger *slog.Logger) *Estimator {
	return &Estimator{
		cfg:    cfg,
		btc:    btc,
		chain:  chain,
		prices: prices,
		logger: logger.With(slog.String("component", "pricing")),
	}
}

// ValidAmount reports whether amount is a positive finite number.
func ValidAmount(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}

// Quote computes the fee breakdown for req. Only invalid input returns an
// error; upstream failures degrade to defaults and are tagged in FeeSources.
func (e *Estimator) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if !ValidAmount(req.Amount) {
		return domain.Quote{}, fmt.Errorf("pricing: positive amount required: %w", domain.ErrInvalidInput)
	}
	action := req.Action
	if action == "" {
		action = domain.ActionDeposit
	}
	token, err := LookupToken(req.Token, e.cfg.DefaultToken)
	if err != nil {
		return domain.Quote{}, err
	}

	btcFee, btcSrc := e.btcL1Fee(ctx, req.Amount, action)
	snFee, snSrc := e.starknetFee(ctx, token, req.Amount)

	amount := req.Amount
	marginFee := amount * e.cfg.MarginBps / 10000
	batchDiscount := 0.0
	eta := e.cfg.EtaSeconds
	if req.Batch {
		batchDiscount = amount * e.cfg.BatchDiscountBps / 10000
		eta = e.cfg.BatchEtaSeconds
	}
	total := btcFee + snFee + marginFee - batchDiscount

	floored := false
	if e.cfg.FloorTotalFee && total < 0 {
		total = 0
		floored = true
	}

	return domain.Quote{
		TokenSymbol:     token.Symbol,
		Action:          action,
		Amount:          amount,
		BTCL1Fee:        btcFee,
		StarknetFee:     snFee,
		MarginFee:       marginFee,
		BatchDiscount:   batchDiscount,
		TotalFee:        total,
		MinEnforced:     math.Max(amount, e.cfg.MinDeposit),
		EtaSeconds:      eta,
		BatchEligible:   true,
		FeeSources:      domain.FeeSources{BTCL1Fee: btcSrc, StarknetFee: snSrc},
		FeeFloorApplied: floored,
	}, nil
}

func (e *Estimator) btcL1Fee(ctx context.Context, amount float64, action domain.Action) (float64, domain.FeeSource) {
	if e.btc == nil {
		return e.cfg.DefaultBTCL1Fee, domain.FeeFallback
	}
	fee, err := e.btc.EstimateFee(ctx, amount, action)
	if err != nil || !ValidAmount(fee) {
		e.logger.Debug("btc fee estimate unavailable, using default", slog.Any("error", err))
		return e.cfg.DefaultBTCL1Fee, domain.FeeFallback
	}
	return fee, domain.FeeEstimated
}

// starknetFee converts the vault invoke fee from the node's fee asset into
// the deposit token via USD prices.
func (e *Estimator) starknetFee(ctx context.Context, token Token, amount float64) (float64, domain.FeeSource) {
	if e.chain == nil || e.prices == nil {
		return e.cfg.DefaultStarknetFee, domain.FeeFallback
	}
	fee, err := e.convertChainFee(ctx, token, amount)
	if err != nil {
		e.logger.Debug("starknet fee estimate unavailable, using default", slog.Any("error", err))
		return e.cfg.DefaultStarknetFee, domain.FeeFallback
	}
	return fee, domain.FeeEstimated
}

func (e *Estimator) convertChainFee(ctx context.Context, token Token, amount float64) (float64, error) {
	est, err := e.chain.EstimateInvokeFee(ctx, e.cfg.Entrypoint, e.cfg.EstimateUser, token.ToBaseUnits(amount))
	if err != nil {
		return 0, err
	}
	if est.OverallFee == nil || est.OverallFee.Sign() <= 0 {
		return 0, fmt.Errorf("pricing: empty fee estimate")
	}
	assetID, ok := feeAssets[strings.ToUpper(est.Unit)]
	if !ok {
		return 0, fmt.Errorf("pricing: unknown fee unit %q", est.Unit)
	}

	prices, err := e.prices.USDPrices(ctx, []string{assetID, token.PriceID})
	if err != nil {
		return 0, err
	}
	return ConvertFee(est.OverallFee, prices[assetID], prices[token.PriceID])
}

// ConvertFee turns a fee in 18-decimal base units of an asset priced at
// feeUSD into an amount of a token priced at tokenUSD.
func ConvertFee(overall *big.Int, feeUSD, tokenUSD float64) (float64, error) {
	if feeUSD <= 0 || tokenUSD <= 0 {
		return 0, fmt.Errorf("pricing: missing usd price")
	}
	native := decimal.NewFromBigInt(overall, -18)
	usd := native.Mul(decimal.NewFromFloat(feeUSD))
	out, _ := usd.Div(decimal.NewFromFloat(tokenUSD)).Float64()
	return out, nil
}
