package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedToken   = errors.New("unsupported token")
	ErrNotConfigured      = errors.New("not configured")
	ErrUpstream           = errors.New("upstream failure")
	ErrVerificationFailed = errors.New("transaction verification failed")
	ErrSigningFailed      = errors.New("signing failed")
	ErrTxHashRequired     = errors.New("onchainTxHash required in non-custodial mode")
	ErrTxHashReused       = errors.New("onchainTxHash already used")
	ErrLockHeld           = errors.New("lock held")
)

// UpstreamError carries the message returned by an external service (the
// bridge partner or the Starknet node) so it can be surfaced to API clients.
type UpstreamError struct {
	Service string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return e.Service + ": upstream request failed"
	}
	return e.Message
}

// Unwrap lets errors.Is(err, ErrUpstream) match.
func (e *UpstreamError) Unwrap() error { return ErrUpstream }
