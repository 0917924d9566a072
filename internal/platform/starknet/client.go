// Package starknet talks to a Starknet node over JSON-RPC to read and invoke
// the vault contract.
package starknet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Vault entrypoints.
const (
	EntryGetBalance  = "get_balance"
	EntryDepositFor  = "deposit_for"
	EntryWithdrawFor = "withdraw_for"
)

// Config configures the node client.
type Config struct {
	RPCURL          string
	ContractAddress string
	AccountAddress  string
	MaxFeeMultiple  float64
	Timeout         time.Duration
}

// Client reads the vault balance, submits owner-mode invokes, verifies user
// transactions and estimates invoke fees. Any of RPC URL, contract, account
// or signer may be missing; the affected operations then report that.
type Client struct {
	rpc         *rpc.Client
	contract    string
	account     string
	feeMultiple decimal.Decimal
	signer      Signer
	logger      *slog.Logger

	// invokeMu serialises nonce lookup and submission for the owner account.
	invokeMu sync.Mutex
	// nonceLock extends invokeMu across replicas sharing the account.
	nonceLock domain.Locker

	chainMu sync.Mutex
	chainID string
}

var (
	_ domain.ChainReader       = (*Client)(nil)
	_ domain.ChainWriter       = (*Client)(nil)
	_ domain.TxVerifier        = (*Client)(nil)
	_ domain.ChainFeeEstimator = (*Client)(nil)
)

// UseNonceLock makes owner-mode invokes hold l for the account while the
// nonce is read and the transaction submitted.
func (c *Client) UseNonceLock(l domain.Locker) { c.nonceLock = l }

const (
	nonceLockTTL  = 30 * time.Second
	nonceLockWait = 100 * time.Millisecond
)

// acquireNonceLock waits for the shared account lock until ctx is done or
// nonceLockTTL passes.
func (c *Client) acquireNonceLock(ctx context.Context) (func(), error) {
	key := "starknet:nonce:" + c.account
	deadline := time.Now().Add(nonceLockTTL)
	for {
		unlock, err := c.nonceLock.Acquire(ctx, key, nonceLockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || time.Now().After(deadline) {
			return nil, fmt.Errorf("starknet: nonce lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("starknet: nonce lock: %w", ctx.Err())
		case <-time.After(nonceLockWait):
		}
	}
}

// NewClient creates a Client. signer may be nil. Dialing an HTTP endpoint
// does not contact the node.
func NewClient(ctx context.Context, cfg Config, signer Signer, logger *slog.Logger) (*Client, error) {
	multiple := cfg.MaxFeeMultiple
	if multiple <= 0 {
		multiple = 1.5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		contract:    cfg.ContractAddress,
		account:     cfg.AccountAddress,
		feeMultiple: decimal.NewFromFloat(multiple),
		signer:      signer,
		logger:      logger.With(slog.String("component", "starknet")),
	}

	if cfg.RPCURL != "" {
		rc, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
		if err != nil {
			return nil, fmt.Errorf("starknet: dial %s: %w", cfg.RPCURL, err)
		}
		c.rpc = rc
	}
	return c, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// ReadBalance returns the vault balance of user. It never fails: when the
// client is not configured or the call errors it returns ok=false.
func (c *Client) ReadBalance(ctx context.Context, user string) (*big.Int, bool) {
	if c.rpc == nil || c.contract == "" || user == "" {
		return nil, false
	}
	out, err := c.call(ctx, c.contract, EntryGetBalance, []string{user})
	if err != nil {
		c.logger.Warn("onchain balance read failed", slog.String("user", user), slog.String("error", err.Error()))
		return nil, false
	}
	bal, err := decodeUint(out)
	if err != nil {
		c.logger.Warn("onchain balance decode failed", slog.String("user", user), slog.String("error", err.Error()))
		return nil, false
	}
	return bal, true
}

// InvokeDeposit credits amount base units to user via deposit_for.
func (c *Client) InvokeDeposit(ctx context.Context, user string, amount *big.Int) (domain.OnchainResult, error) {
	return c.invoke(ctx, EntryDepositFor, user, amount)
}

// InvokeWithdraw debits amount base units from user via withdraw_for.
func (c *Client) InvokeWithdraw(ctx context.Context, user string, amount *big.Int) (domain.OnchainResult, error) {
	return c.invoke(ctx, EntryWithdrawFor, user, amount)
}

func (c *Client) writeConfigured() error {
	if c.rpc == nil || c.contract == "" || c.account == "" || c.signer == nil {
		return fmt.Errorf("starknet: Starknet account or contract not configured: %w", domain.ErrNotConfigured)
	}
	return nil
}

// invoke signs and submits one vault call from the owner account. It does
// not wait for the transaction to be accepted.
func (c *Client) invoke(ctx context.Context, entrypoint, user string, amount *big.Int) (domain.OnchainResult, error) {
	if err := c.writeConfigured(); err != nil {
		return domain.OnchainResult{}, err
	}

	calldata := executeCalldata(c.contract, Selector(entrypoint), []string{user, FeltHex(amount)})

	c.invokeMu.Lock()
	defer c.invokeMu.Unlock()

	if c.nonceLock != nil {
		unlock, err := c.acquireNonceLock(ctx)
		if err != nil {
			return domain.OnchainResult{}, err
		}
		defer unlock()
	}

	nonce, err := c.nonce(ctx, c.account)
	if err != nil {
		return domain.OnchainResult{}, err
	}

	est, err := c.estimate(ctx, calldata, nonce)
	if err != nil {
		return domain.OnchainResult{}, err
	}
	maxFee := decimal.NewFromBigInt(est.OverallFee, 0).Mul(c.feeMultiple).Ceil().BigInt()

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return domain.OnchainResult{}, err
	}

	txn := InvokeTxn{
		Type:          "INVOKE",
		SenderAddress: c.account,
		Calldata:      calldata,
		MaxFee:        FeltHex(maxFee),
		Version:       invokeVersion,
		Nonce:         FeltHex(nonce),
	}
	sig, err := c.signer.SignInvoke(ctx, chainID, txn)
	if err != nil {
		return domain.OnchainResult{}, err
	}
	txn.Signature = sig

	var res addInvokeResult
	if err := c.rpc.CallContext(ctx, &res, "starknet_addInvokeTransaction", txn); err != nil {
		return domain.OnchainResult{}, rpcError("add invoke transaction", err)
	}

	c.logger.Info("vault invoke submitted",
		slog.String("entrypoint", entrypoint),
		slog.String("user", user),
		slog.String("amount", amount.String()),
		slog.String("tx_hash", res.TransactionHash),
	)
	return domain.OnchainResult{TransactionHash: res.TransactionHash, Entrypoint: entrypoint}, nil
}

// EstimateInvokeFee estimates the fee of calling entrypoint on the vault from
// the owner account. When user is empty the call takes only the amount.
func (c *Client) EstimateInvokeFee(ctx context.Context, entrypoint, user string, amount *big.Int) (domain.ChainFeeEstimate, error) {
	if c.rpc == nil || c.contract == "" || c.account == "" {
		return domain.ChainFeeEstimate{}, fmt.Errorf("starknet: estimate fee: %w", domain.ErrNotConfigured)
	}
	args := []string{FeltHex(amount)}
	if user != "" {
		args = []string{user, FeltHex(amount)}
	}
	calldata := executeCalldata(c.contract, Selector(entrypoint), args)

	nonce, err := c.nonce(ctx, c.account)
	if err != nil {
		return domain.ChainFeeEstimate{}, err
	}
	return c.estimate(ctx, calldata, nonce)
}

func (c *Client) estimate(ctx context.Context, calldata []string, nonce *big.Int) (domain.ChainFeeEstimate, error) {
	txn := InvokeTxn{
		Type:          "INVOKE",
		SenderAddress: c.account,
		Calldata:      calldata,
		MaxFee:        "0x0",
		Version:       invokeQueryVersion,
		Signature:     []string{},
		Nonce:         FeltHex(nonce),
	}

	var out []FeeEstimate
	err := c.rpc.CallContext(ctx, &out, "starknet_estimateFee", []InvokeTxn{txn}, []string{simulationSkipAuth}, blockPending)
	if err != nil {
		return domain.ChainFeeEstimate{}, rpcError("estimate fee", err)
	}
	if len(out) == 0 {
		return domain.ChainFeeEstimate{}, errors.New("starknet: estimate fee: empty result")
	}
	overall, err := ParseFelt(out[0].OverallFee)
	if err != nil {
		return domain.ChainFeeEstimate{}, fmt.Errorf("starknet: estimate fee: %w", err)
	}
	unit := out[0].Unit
	if unit == "" {
		unit = "WEI"
	}
	return domain.ChainFeeEstimate{OverallFee: overall, Unit: unit}, nil
}

// VerifyTransaction checks that txHash succeeded and emitted at least one
// event from the vault contract.
func (c *Client) VerifyTransaction(ctx context.Context, txHash string) error {
	if c.rpc == nil || c.contract == "" {
		return fmt.Errorf("starknet: verify: %w", domain.ErrNotConfigured)
	}
	rcpt, err := c.Receipt(ctx, txHash)
	if err != nil {
		return err
	}
	if rcpt.ExecutionStatus == executionReverted {
		return fmt.Errorf("starknet: transaction %s reverted: %w", txHash, domain.ErrVerificationFailed)
	}
	for _, ev := range rcpt.Events {
		if SameAddress(ev.FromAddress, c.contract) {
			return nil
		}
	}
	return fmt.Errorf("starknet: transaction %s has no event from the vault contract: %w", txHash, domain.ErrVerificationFailed)
}

// Receipt fetches a transaction receipt.
func (c *Client) Receipt(ctx context.Context, txHash string) (Receipt, error) {
	var rcpt Receipt
	if err := c.rpc.CallContext(ctx, &rcpt, "starknet_getTransactionReceipt", txHash); err != nil {
		return Receipt{}, rpcError("get receipt", err)
	}
	return rcpt, nil
}

// ChainID returns the node's chain id, fetched once.
func (c *Client) ChainID(ctx context.Context) (string, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != "" {
		return c.chainID, nil
	}
	var id string
	if err := c.rpc.CallContext(ctx, &id, "starknet_chainId"); err != nil {
		return "", rpcError("chain id", err)
	}
	c.chainID = id
	return id, nil
}

func (c *Client) call(ctx context.Context, contract, entrypoint string, calldata []string) ([]string, error) {
	req := FunctionCall{
		ContractAddress:    contract,
		EntryPointSelector: FeltHex(Selector(entrypoint)),
		Calldata:           calldata,
	}
	var out []string
	if err := c.rpc.CallContext(ctx, &out, "starknet_call", req, blockLatest); err != nil {
		return nil, rpcError("call "+entrypoint, err)
	}
	return out, nil
}

func (c *Client) nonce(ctx context.Context, account string) (*big.Int, error) {
	var out string
	if err := c.rpc.CallContext(ctx, &out, "starknet_getNonce", blockPending, account); err != nil {
		return nil, rpcError("get nonce", err)
	}
	n, err := ParseFelt(out)
	if err != nil {
		return nil, fmt.Errorf("starknet: get nonce: %w", err)
	}
	return n, nil
}

// rpcError converts a node error into an UpstreamError so the node's message
// reaches the API client.
func rpcError(op string, err error) error {
	msg := err.Error()
	var de rpc.DataError
	if errors.As(err, &de) && de.ErrorData() != nil {
		msg = fmt.Sprintf("%s: %v", msg, de.ErrorData())
	}
	return fmt.Errorf("starknet: %s: %w", op, &domain.UpstreamError{Service: "starknet", Message: msg})
}
