package domain

import (
	"context"
	"math/big"
	"strings"
)

// Action is the direction of a bridge operation.
type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

// ParseAction normalises a client-supplied action. Empty defaults to deposit.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionDeposit:
		return ActionDeposit, true
	case ActionWithdraw:
		return ActionWithdraw, true
	default:
		return "", false
	}
}

// FeeSource tags whether a fee component came from a live lookup or from the
// static default.
type FeeSource string

const (
	FeeEstimated FeeSource = "estimated"
	FeeFallback  FeeSource = "fallback"
)

// FeeSources records the provenance of the variable fee components of a quote.
type FeeSources struct {
	BTCL1Fee    FeeSource `json:"btcL1Fee"`
	StarknetFee FeeSource `json:"starknetFee"`
}

// Degraded reports whether any component fell back to its static default.
func (s FeeSources) Degraded() bool {
	return s.BTCL1Fee == FeeFallback || s.StarknetFee == FeeFallback
}

// QuoteRequest is the input to the fee estimator.
type QuoteRequest struct {
	Amount float64
	Action Action
	Batch  bool
	Token  string
}

// Quote is a derived fee breakdown. It is never persisted beyond history and
// the quote log.
//
// TotalFee = BTCL1Fee + StarknetFee + MarginFee - BatchDiscount.
type Quote struct {
	TokenSymbol     string     `json:"tokenSymbol"`
	Action          Action     `json:"action"`
	Amount          float64    `json:"amount"`
	BTCL1Fee        float64    `json:"btcL1Fee"`
	StarknetFee     float64    `json:"starknetFee"`
	MarginFee       float64    `json:"marginFee"`
	BatchDiscount   float64    `json:"batchDiscount"`
	TotalFee        float64    `json:"totalFee"`
	MinEnforced     float64    `json:"minEnforced"`
	EtaSeconds      int        `json:"etaSeconds"`
	BatchEligible   bool       `json:"batchEligible"`
	FeeSources      FeeSources `json:"feeSources"`
	FeeFloorApplied bool       `json:"feeFloorApplied"`
}

// BTCFeeEstimator returns the bridge partner's L1 fee estimate in BTC.
type BTCFeeEstimator interface {
	EstimateFee(ctx context.Context, amount float64, action Action) (float64, error)
}

// ChainFeeEstimate is a raw fee estimate from the chain, in the smallest unit
// of the fee asset (wei for ETH, fri for STRK).
type ChainFeeEstimate struct {
	OverallFee *big.Int
	Unit       string
}

// ChainFeeEstimator estimates the fee for invoking the vault entrypoint.
type ChainFeeEstimator interface {
	EstimateInvokeFee(ctx context.Context, entrypoint string, user string, amount *big.Int) (ChainFeeEstimate, error)
}

// PriceFeed returns USD prices keyed by asset id (e.g. "bitcoin", "ethereum").
type PriceFeed interface {
	USDPrices(ctx context.Context, ids []string) (map[string]float64, error)
}

// QuoteLog receives every quote produced. Implementations are best-effort.
type QuoteLog interface {
	Record(q Quote)
}
