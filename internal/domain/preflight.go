package domain

// DenyReason is the closed set of preflight rejection codes.
type DenyReason string

const (
	ReasonTOSNotAccepted         DenyReason = "TOS_NOT_ACCEPTED"
	ReasonGeofence               DenyReason = "GEOFENCE"
	ReasonMissingAddresses       DenyReason = "MISSING_ADDRESSES"
	ReasonInvalidBTCAddress      DenyReason = "INVALID_BTC_ADDRESS"
	ReasonInvalidStarknetAddress DenyReason = "INVALID_STARKNET_ADDRESS"
	ReasonKYCDenylist            DenyReason = "KYC_DENYLIST"
	ReasonKYCNotAllowlisted      DenyReason = "KYC_NOT_ALLOWLISTED"
	ReasonServerError            DenyReason = "SERVER_ERROR"
)

// PreflightRequest is the compliance input. CountryCode comes from a request
// header, not the body.
type PreflightRequest struct {
	TermsAccepted   bool
	BTCAddress      string
	StarknetAddress string
	CountryCode     string
}

// PreflightDecision is the gate outcome. Reason is empty when Allowed.
type PreflightDecision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

// Allow is the positive decision.
func Allow() PreflightDecision { return PreflightDecision{Allowed: true} }

// Deny builds a negative decision.
func Deny(r DenyReason) PreflightDecision { return PreflightDecision{Reason: r} }
