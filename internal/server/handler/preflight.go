package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/shuttle/internal/compliance"
	"github.com/alanyoungcy/shuttle/internal/domain"
)

// PreflightChecker decides whether a user may proceed.
type PreflightChecker interface {
	Check(req domain.PreflightRequest) domain.PreflightDecision
}

// PreflightHandler serves the compliance gate.
type PreflightHandler struct {
	gate   PreflightChecker
	logger *slog.Logger
}

// NewPreflightHandler creates a PreflightHandler.
func NewPreflightHandler(gate PreflightChecker, logger *slog.Logger) *PreflightHandler {
	return &PreflightHandler{gate: gate, logger: logHandler(logger, "preflight")}
}

type preflightRequest struct {
	TOSAccepted     truthyField `json:"tosAccepted"`
	BTCAddress      textField   `json:"btcAddress"`
	StarknetAddress textField   `json:"starknetAddress"`
}

// Preflight runs the gate. The country comes from X-Country, then
// CF-IPCountry. The answer is always a decision: an unreadable body is
// judged as an empty one, which the gate denies with TOS_NOT_ACCEPTED.
// POST /preflight
func (h *PreflightHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	var body preflightRequest
	if err := decodeBody(r, &body); err != nil {
		h.logger.DebugContext(r.Context(), "unreadable preflight body", slog.String("error", err.Error()))
		body = preflightRequest{}
	}

	country := r.Header.Get("X-Country")
	if country == "" {
		country = r.Header.Get("CF-IPCountry")
	}

	d := h.gate.Check(domain.PreflightRequest{
		TermsAccepted:   bool(body.TOSAccepted),
		BTCAddress:      string(body.BTCAddress),
		StarknetAddress: string(body.StarknetAddress),
		CountryCode:     country,
	})
	if !d.Allowed {
		h.logger.InfoContext(r.Context(), "preflight denied",
			slog.String("reason", string(d.Reason)),
			slog.String("country", country),
		)
	}
	writeJSON(w, compliance.StatusCode(d), d)
}
