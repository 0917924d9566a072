package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode    domain.Mode
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the operating mode.
func NewHealthHandler(mode domain.Mode, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, started: time.Now(), logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
