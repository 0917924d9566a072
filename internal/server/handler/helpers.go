package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// ErrorCode is the closed set of machine-readable error codes in error
// bodies.
type ErrorCode string

const (
	CodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	CodeInvalidBody        ErrorCode = "INVALID_BODY"
	CodeMissingAddresses   ErrorCode = "MISSING_ADDRESSES"
	CodeUnsupportedToken   ErrorCode = "UNSUPPORTED_TOKEN"
	CodeTxHashRequired     ErrorCode = "TX_HASH_REQUIRED"
	CodeTxNotFromContract  ErrorCode = "TX_NOT_FROM_CONTRACT"
	CodeTxHashReused       ErrorCode = "TX_HASH_REUSED"
	CodeBridgeFailed       ErrorCode = "BRIDGE_FAILED"
	CodeChainNotConfigured ErrorCode = "CHAIN_NOT_CONFIGURED"
	CodeChainInvokeFailed  ErrorCode = "CHAIN_INVOKE_FAILED"
	CodeQuoteFailed        ErrorCode = "QUOTE_FAILED"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeInternal           ErrorCode = "INTERNAL"
)

// errorBody is the shape of every non-2xx response except preflight.
type errorBody struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error","code":"INTERNAL"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string, code ErrorCode) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// decodeBody reads a JSON request body into v. An empty body leaves v at its
// zero value.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("request body exceeds %d bytes", mbe.Limit)
	}
	return fmt.Errorf("invalid request body: %w", err)
}

// amountField accepts a JSON number or numeric string. Anything else decodes
// to NaN so validation rejects it with the usual message.
type amountField float64

func (a *amountField) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*a = amountField(math.NaN())
		return nil
	}
	*a = amountField(f)
	return nil
}

// truthyField reads a JSON value by truthiness: false, null, 0 and "" are
// false, every other value (including "false", [] and {}) is true.
type truthyField bool

func (t *truthyField) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null" || s == "false" || s == `""`:
		*t = false
	case s == "true" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "["):
		*t = true
	case strings.HasPrefix(s, `"`):
		*t = true
	default:
		f, err := strconv.ParseFloat(s, 64)
		*t = truthyField(err != nil || (f != 0 && !math.IsNaN(f)))
	}
	return nil
}

// textField accepts a JSON string, or the literal text of a number or
// boolean. null and composite values decode to "".
type textField string

func (t *textField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = textField(s)
		return nil
	}
	raw := strings.TrimSpace(string(b))
	if raw == "null" || strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		*t = ""
		return nil
	}
	*t = textField(raw)
	return nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
