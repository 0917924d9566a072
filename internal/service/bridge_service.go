package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/metrics"
	"github.com/alanyoungcy/shuttle/internal/notify"
	"github.com/alanyoungcy/shuttle/internal/pricing"
)

// Orchestration phases, logged as each completes.
const (
	PhaseStarted           = "STARTED"
	PhaseComplianceChecked = "COMPLIANCE_CHECKED"
	PhaseBridgeCalled      = "BRIDGE_CALLED"
	PhaseChainInvoked      = "CHAIN_INVOKED"
	PhaseBalancePolled     = "BALANCE_POLLED"
	PhaseRecorded          = "RECORDED"
)

// ErrMissingFields is returned when addresses or a positive amount are absent.
var ErrMissingFields = fmt.Errorf("btcAddress, starknetAddress and positive amount required: %w", domain.ErrInvalidInput)

// BalanceWaiter polls for balance convergence.
type BalanceWaiter interface {
	WaitForBalance(ctx context.Context, addr string, expectedDelta *big.Int) domain.ConvergenceResult
}

// Alerter receives operation outcomes for operators.
type Alerter interface {
	OperationCompleted(ctx context.Context, mode domain.Mode, rec domain.HistoryRecord)
	OperationFailed(ctx context.Context, f notify.Failure)
}

// OperationRequest is the input to Deposit and Withdraw.
type OperationRequest struct {
	BTCAddress      string
	StarknetAddress string
	Amount          float64
	Batch           bool
	Token           string
	OnchainTxHash   string
}

// OperationResult is the orchestration outcome. Owner-mode fields are nil in
// non-custodial mode.
type OperationResult struct {
	Mode        domain.Mode
	Bridge      domain.BridgeResult
	Onchain     *domain.OnchainResult
	Balance     *big.Int
	Converged   *bool
	Instruction string
	Record      domain.HistoryRecord
}

// BridgeConfig holds the static orchestration settings.
type BridgeConfig struct {
	Mode         domain.Mode
	DefaultToken string
	// DepositEntrypoint is named in the non-custodial instruction.
	DepositEntrypoint string
}

// BridgeService sequences bridge calls, vault invokes, balance polling and
// history recording for deposits and withdrawals. There is no retry and no
// compensation: a failure after funds moved raises an operator alert.
type BridgeService struct {
	cfg      BridgeConfig
	bridge   domain.Bridge
	writer   domain.ChainWriter
	verifier domain.TxVerifier
	reader   domain.ChainReader
	waiter   BalanceWaiter
	history  *HistoryService
	alerter  Alerter
	guard    *TxGuard
	logger   *slog.Logger
}

// NewBridgeService creates a BridgeService. alerter may be nil.
func NewBridgeService(
	cfg BridgeConfig,
	bridge domain.Bridge,
	writer domain.ChainWriter,
	verifier domain.TxVerifier,
	reader domain.ChainReader,
	waiter BalanceWaiter,
	history *HistoryService,
	alerter Alerter,
	logger *slog.Logger,
) *BridgeService {
	if cfg.DepositEntrypoint == "" {
		cfg.DepositEntrypoint = "deposit_btc"
	}
	return &BridgeService{
		cfg:      cfg,
		bridge:   bridge,
		writer:   writer,
		verifier: verifier,
		reader:   reader,
		waiter:   waiter,
		history:  history,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "bridge_service")),
	}
}

// UseTxGuard rejects non-custodial withdraws that reuse a transaction hash.
func (s *BridgeService) UseTxGuard(g *TxGuard) { s.guard = g }

// Mode returns the configured operating mode.
func (s *BridgeService) Mode() domain.Mode { return s.cfg.Mode }

// Balance reads the vault balance of starknetAddress, or zero when it cannot
// be read.
func (s *BridgeService) Balance(ctx context.Context, starknetAddress string) *big.Int {
	if bal, ok := s.reader.ReadBalance(ctx, starknetAddress); ok {
		return bal
	}
	return new(big.Int)
}

// op tracks one orchestration for logging and failure alerts.
type op struct {
	id     string
	kind   domain.HistoryKind
	phase  string
	moved  bool // funds left the starting state
	rec    domain.HistoryRecord
	logger *slog.Logger
}

func (o *op) advance(phase string) {
	o.phase = phase
	o.logger.Info("operation phase", slog.String("phase", phase))
}

func (s *BridgeService) begin(kind domain.HistoryKind, req OperationRequest, token pricing.Token) *op {
	id := uuid.NewString()
	o := &op{
		id:   id,
		kind: kind,
		rec: domain.HistoryRecord{
			ID:              id,
			Kind:            kind,
			BTCAddress:      req.BTCAddress,
			StarknetAddress: req.StarknetAddress,
			Amount:          req.Amount,
			Token:           token.Symbol,
			Batch:           req.Batch,
			OnchainTxHash:   req.OnchainTxHash,
		},
		logger: s.logger.With(
			slog.String("op_id", id),
			slog.String("kind", string(kind)),
			slog.String("mode", string(s.cfg.Mode)),
		),
	}
	o.advance(PhaseStarted)
	return o
}

// fail logs err and, when funds already moved, raises an alert.
func (s *BridgeService) fail(ctx context.Context, o *op, err error) error {
	o.logger.Error("operation failed", slog.String("phase", o.phase), slog.String("error", err.Error()))
	metrics.Operations.WithLabelValues(string(o.kind), string(s.cfg.Mode), "failed").Inc()
	if o.moved && s.alerter != nil {
		s.alerter.OperationFailed(ctx, notify.Failure{
			Kind:   o.kind,
			Mode:   s.cfg.Mode,
			Phase:  o.phase,
			Record: o.rec,
			Err:    err,
		})
	}
	return err
}

func (s *BridgeService) finish(ctx context.Context, o *op) (domain.HistoryRecord, error) {
	rec, err := s.history.Record(ctx, o.rec)
	if err != nil {
		return rec, s.fail(ctx, o, err)
	}
	o.advance(PhaseRecorded)
	metrics.Operations.WithLabelValues(string(o.kind), string(s.cfg.Mode), "ok").Inc()
	if s.alerter != nil {
		s.alerter.OperationCompleted(ctx, s.cfg.Mode, rec)
	}
	return rec, nil
}

func (s *BridgeService) validate(kind domain.HistoryKind, req OperationRequest) (pricing.Token, error) {
	if strings.TrimSpace(req.BTCAddress) == "" || strings.TrimSpace(req.StarknetAddress) == "" || !pricing.ValidAmount(req.Amount) {
		metrics.Operations.WithLabelValues(string(kind), string(s.cfg.Mode), "invalid").Inc()
		return pricing.Token{}, ErrMissingFields
	}
	token, err := pricing.LookupToken(req.Token, s.cfg.DefaultToken)
	if err != nil {
		metrics.Operations.WithLabelValues(string(kind), string(s.cfg.Mode), "invalid").Inc()
		return pricing.Token{}, err
	}
	return token, nil
}

// Deposit bridges BTC in. In owner mode the vault is credited by the backend
// and the balance polled; otherwise the caller receives an instruction to
// call the deposit entrypoint from their own wallet. Invalid input returns
// before any side effect.
//
// The orchestration is detached from ctx cancellation: a client disconnect
// does not abort calls already in flight.
func (s *BridgeService) Deposit(ctx context.Context, req OperationRequest) (OperationResult, error) {
	if s.cfg.Mode == domain.ModeOwner {
		return s.ownerDeposit(context.WithoutCancel(ctx), req)
	}
	return s.nonCustodialDeposit(context.WithoutCancel(ctx), req)
}

// Withdraw moves funds out. Owner mode debits the vault first, then redeems
// BTC. Non-custodial mode requires the hash of the user's own withdraw
// transaction, checks that it came from the vault, then redeems.
func (s *BridgeService) Withdraw(ctx context.Context, req OperationRequest) (OperationResult, error) {
	if s.cfg.Mode == domain.ModeOwner {
		return s.ownerWithdraw(context.WithoutCancel(ctx), req)
	}
	return s.nonCustodialWithdraw(context.WithoutCancel(ctx), req)
}

func (s *BridgeService) ownerDeposit(ctx context.Context, req OperationRequest) (OperationResult, error) {
	token, err := s.validate(domain.KindDeposit, req)
	if err != nil {
		return OperationResult{}, err
	}
	o := s.begin(domain.KindDeposit, req, token)
	o.advance(PhaseComplianceChecked)

	bridge, err := s.bridge.Forward(ctx, req.BTCAddress, req.Amount)
	if err != nil {
		return OperationResult{}, s.fail(ctx, o, err)
	}
	o.moved = true
	o.rec.Bridge = &bridge
	o.advance(PhaseBridgeCalled)

	units := token.ToBaseUnits(req.Amount)
	onchain, err := s.writer.InvokeDeposit(ctx, req.StarknetAddress, units)
	if err != nil {
		return OperationResult{}, s.fail(ctx, o, err)
	}
	o.rec.Onchain = &onchain
	o.advance(PhaseChainInvoked)

	conv := s.waiter.WaitForBalance(ctx, req.StarknetAddress, units)
	o.advance(PhaseBalancePolled)

	rec, err := s.finish(ctx, o)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{
		Mode:      domain.ModeOwner,
		Bridge:    bridge,
		Onchain:   &onchain,
		Balance:   conv.Balance,
		Converged: &conv.Converged,
		Record:    rec,
	}, nil
}

func (s *BridgeService) nonCustodialDeposit(ctx context.Context, req OperationRequest) (OperationResult, error) {
	token, err := s.validate(domain.KindDepositIntent, req)
	if err != nil {
		return OperationResult{}, err
	}
	o := s.begin(domain.KindDepositIntent, req, token)
	o.advance(PhaseComplianceChecked)

	bridge, err := s.bridge.Forward(ctx, req.BTCAddress, req.Amount)
	if err != nil {
		return OperationResult{}, s.fail(ctx, o, err)
	}
	o.moved = true
	o.rec.Bridge = &bridge
	o.advance(PhaseBridgeCalled)

	rec, err := s.finish(ctx, o)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{
		Mode:        domain.ModeNonCustodial,
		Bridge:      bridge,
		Instruction: fmt.Sprintf("Call %s(amount) from your Starknet wallet", s.cfg.DepositEntrypoint),
		Record:      rec,
	}, nil
}

func (s *BridgeService) ownerWithdraw(ctx context.Context, req OperationRequest) (OperationResult, error) {
	token, err := s.validate(domain.KindWithdraw, req)
	if err != nil {
		return OperationResult{}, err
	}
	o := s.begin(domain.KindWithdraw, req, token)
	o.advance(PhaseComplianceChecked)

	onchain, err := s.writer.InvokeWithdraw(ctx, req.StarknetAddress, token.ToBaseUnits(req.Amount))
	if err != nil {
		return OperationResult{}, s.fail(ctx, o, err)
	}
	o.moved = true
	o.rec.Onchain = &onchain
	o.advance(PhaseChainInvoked)

	// A zero delta converges on the first successful read.
	conv := s.waiter.WaitForBalance(ctx, req.StarknetAddress, new(big.Int))
	o.advance(PhaseBalancePolled)

	bridge, err := s.bridge.Reverse(ctx, req.BTCAddress, req.Amount)
	if err != nil {
		return OperationResult{}, s.fail(ctx, o, err)
	}
	o.rec.Bridge = &bridge
	o.advance(PhaseBridgeCalled)

	rec, err := s.finish(ctx, o)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{
		Mode:      domain.ModeOwner,
		Bridge:    bridge,
		Onchain:   &onchain,
		Balance:   conv.Balance,
		Converged: &conv.Converged,
		Record:    rec,
	}, nil
}

func (s *BridgeService) nonCustodialWithdraw(ctx context.Context, req OperationRequest) (OperationResult, error) {
	token, err := s.validate(domain.KindWithdrawIntent, req)
	if err != nil {
		return OperationResult{}, err
	}
	if strings.TrimSpace(req.OnchainTxHash) == "" {
		metrics.Operations.WithLabelValues(string(domain.KindWithdrawIntent), string(s.cfg.Mode), "invalid").Inc()
		return OperationResult{}, domain.ErrTxHashRequired
	}
	if s.guard != nil && !s.guard.Claim(req.OnchainTxHash) {
		metrics.Operations.WithLabelValues(string(domain.KindWithdrawIntent), string(s.cfg.Mode), "invalid").Inc()
		return OperationResult{}, domain.ErrTxHashReused
	}
	o := s.begin(domain.KindWithdrawIntent, req, token)

	if s.verifier != nil {
		err := s.verifier.VerifyTransaction(ctx, req.OnchainTxHash)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotConfigured):
			o.logger.Warn("chain not configured, accepting onchainTxHash unverified")
		default:
			s.releaseTx(req.OnchainTxHash)
			return OperationResult{}, s.fail(ctx, o, err)
		}
	}
	o.advance(PhaseComplianceChecked)

	bridge, err := s.bridge.Reverse(ctx, req.BTCAddress, req.Amount)
	if err != nil {
		s.releaseTx(req.OnchainTxHash)
		return OperationResult{}, s.fail(ctx, o, err)
	}
	o.moved = true
	o.rec.Bridge = &bridge
	o.advance(PhaseBridgeCalled)

	rec, err := s.finish(ctx, o)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{
		Mode:   domain.ModeNonCustodial,
		Bridge: bridge,
		Record: rec,
	}, nil
}

func (s *BridgeService) releaseTx(hash string) {
	if s.guard != nil {
		s.guard.Release(hash)
	}
}
