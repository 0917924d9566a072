package domain

import (
	"context"
	"encoding/json"
	"math/big"
)

// Mode selects who signs on-chain vault transactions.
type Mode string

const (
	// ModeOwner: the backend signs deposit_for / withdraw_for with its hot key.
	ModeOwner Mode = "owner"
	// ModeNonCustodial: the user's wallet signs; the backend only runs the
	// bridge leg.
	ModeNonCustodial Mode = "non_custodial"
)

// BridgeResult is returned by the partner adapter. Beyond these fields the
// partner payload is opaque and kept verbatim in Raw.
type BridgeResult struct {
	TransactionID string          `json:"transactionId"`
	Address       string          `json:"btcAddress"`
	Amount        float64         `json:"amount"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Bridge moves BTC into (Forward) and out of (Reverse) the target chain.
type Bridge interface {
	Forward(ctx context.Context, btcAddress string, amount float64) (BridgeResult, error)
	Reverse(ctx context.Context, btcAddress string, amount float64) (BridgeResult, error)
}

// OnchainResult describes a submitted vault transaction.
type OnchainResult struct {
	TransactionHash string `json:"transactionHash"`
	Entrypoint      string `json:"entrypoint"`
}

// ChainReader reads the vault balance. ok is false when the chain is not
// configured or the read failed; errors are logged, not returned.
type ChainReader interface {
	ReadBalance(ctx context.Context, starknetAddress string) (balance *big.Int, ok bool)
}

// ChainWriter submits owner-mode vault transactions. It does not wait for
// finality.
type ChainWriter interface {
	InvokeDeposit(ctx context.Context, starknetAddress string, amount *big.Int) (OnchainResult, error)
	InvokeWithdraw(ctx context.Context, starknetAddress string, amount *big.Int) (OnchainResult, error)
}

// TxVerifier checks that a user-submitted transaction was emitted by the
// configured vault contract.
type TxVerifier interface {
	VerifyTransaction(ctx context.Context, txHash string) error
}

// APYSource reports the vault's current yield in percent.
type APYSource interface {
	APY(ctx context.Context) float64
}

// ConvergenceResult is the outcome of polling for a balance change.
type ConvergenceResult struct {
	Baseline  *big.Int `json:"baseline"`
	Balance   *big.Int `json:"balance"`
	Converged bool     `json:"converged"`
	Attempts  int      `json:"attempts"`
}
