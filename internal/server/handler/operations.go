package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/service"
)

// BridgeOperator runs deposits and withdrawals.
type BridgeOperator interface {
	Mode() domain.Mode
	Deposit(ctx context.Context, req service.OperationRequest) (service.OperationResult, error)
	Withdraw(ctx context.Context, req service.OperationRequest) (service.OperationResult, error)
	Balance(ctx context.Context, starknetAddress string) *big.Int
}

// OperationHandler serves deposit, withdraw and balance.
type OperationHandler struct {
	ops    BridgeOperator
	logger *slog.Logger
}

// NewOperationHandler creates an OperationHandler.
func NewOperationHandler(ops BridgeOperator, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{ops: ops, logger: logHandler(logger, "operations")}
}

type operationRequest struct {
	BTCAddress      string      `json:"btcAddress"`
	StarknetAddress string      `json:"starknetAddress"`
	Amount          amountField `json:"amount"`
	Batch           bool        `json:"batch"`
	Token           string      `json:"token"`
	OnchainTxHash   string      `json:"onchainTxHash"`
}

func (b operationRequest) toService() service.OperationRequest {
	return service.OperationRequest{
		BTCAddress:      b.BTCAddress,
		StarknetAddress: b.StarknetAddress,
		Amount:          float64(b.Amount),
		Batch:           b.Batch,
		Token:           b.Token,
		OnchainTxHash:   b.OnchainTxHash,
	}
}

// bridgeView is the bridge object in responses. txId repeats transactionId
// for older clients.
type bridgeView struct {
	TransactionID string  `json:"transactionId"`
	TxID          string  `json:"txId"`
	BTCAddress    string  `json:"btcAddress"`
	Amount        float64 `json:"amount"`
}

type operationResponse struct {
	Bridge      bridgeView            `json:"bridge"`
	OnchainTx   *domain.OnchainResult `json:"onchainTx,omitempty"`
	Balance     *big.Int              `json:"balance,omitempty"`
	Converged   *bool                 `json:"converged,omitempty"`
	Instruction string                `json:"instruction,omitempty"`
	Mode        domain.Mode           `json:"mode"`
}

func newOperationResponse(res service.OperationResult) operationResponse {
	return operationResponse{
		Bridge: bridgeView{
			TransactionID: res.Bridge.TransactionID,
			TxID:          res.Bridge.TransactionID,
			BTCAddress:    res.Bridge.Address,
			Amount:        res.Bridge.Amount,
		},
		OnchainTx:   res.Onchain,
		Balance:     res.Balance,
		Converged:   res.Converged,
		Instruction: res.Instruction,
		Mode:        res.Mode,
	}
}

// Deposit bridges BTC in and, in owner mode, credits the vault.
// POST /deposit
func (h *OperationHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "Deposit failed", h.ops.Deposit)
}

// Withdraw debits the vault (owner mode) or checks the user's withdraw
// transaction (non-custodial), then redeems BTC.
// POST /withdraw
func (h *OperationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "Withdraw failed", h.ops.Withdraw)
}

func (h *OperationHandler) run(
	w http.ResponseWriter,
	r *http.Request,
	fallback string,
	op func(context.Context, service.OperationRequest) (service.OperationResult, error),
) {
	var body operationRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidBody)
		return
	}

	res, err := op(r.Context(), body.toService())
	if err != nil {
		h.writeOperationError(w, r, body, fallback, err)
		return
	}
	writeJSON(w, http.StatusOK, newOperationResponse(res))
}

func (h *OperationHandler) writeOperationError(w http.ResponseWriter, r *http.Request, body operationRequest, fallback string, err error) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code := CodeInvalidAmount
		if strings.TrimSpace(body.BTCAddress) == "" || strings.TrimSpace(body.StarknetAddress) == "" {
			code = CodeMissingAddresses
		}
		writeError(w, http.StatusBadRequest, "btcAddress, starknetAddress and positive amount required", code)
	case errors.Is(err, domain.ErrUnsupportedToken):
		writeError(w, http.StatusBadRequest, "unsupported token", CodeUnsupportedToken)
	case errors.Is(err, domain.ErrTxHashRequired):
		writeError(w, http.StatusBadRequest, domain.ErrTxHashRequired.Error(), CodeTxHashRequired)
	case errors.Is(err, domain.ErrTxHashReused):
		writeError(w, http.StatusConflict, domain.ErrTxHashReused.Error(), CodeTxHashReused)
	case errors.Is(err, domain.ErrVerificationFailed):
		h.logger.WarnContext(r.Context(), "onchain tx verification failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "onchainTxHash is not a vault transaction", CodeTxNotFromContract)
	case errors.Is(err, domain.ErrNotConfigured):
		h.logger.ErrorContext(r.Context(), "chain not configured", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Starknet account or contract env not configured", CodeChainNotConfigured)
	case errors.As(err, &upstream):
		h.logger.ErrorContext(r.Context(), "upstream failure",
			slog.String("service", upstream.Service),
			slog.String("error", err.Error()),
		)
		code := CodeChainInvokeFailed
		if upstream.Service == "atomiq" {
			code = CodeBridgeFailed
		}
		writeError(w, http.StatusInternalServerError, upstream.Error(), code)
	case errors.Is(err, domain.ErrSigningFailed):
		h.logger.ErrorContext(r.Context(), "signing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error(), CodeChainInvokeFailed)
	default:
		h.logger.ErrorContext(r.Context(), "operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, fallback, CodeInternal)
	}
}

// Balance reports the vault balance in token base units, or 0 when it
// cannot be read.
// GET /balance?btcAddress=&starknetAddress=
func (h *OperationHandler) Balance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	btcAddress, starknetAddress := q.Get("btcAddress"), q.Get("starknetAddress")
	if btcAddress == "" && starknetAddress == "" {
		writeError(w, http.StatusBadRequest, "btcAddress or starknetAddress required", CodeMissingAddresses)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*big.Int{"balance": h.ops.Balance(r.Context(), starknetAddress)})
}
