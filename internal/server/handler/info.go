package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// HistoryLister lists history records.
type HistoryLister interface {
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)
}

// InfoHandler serves the read-only APY and history endpoints.
type InfoHandler struct {
	apy     domain.APYSource
	history HistoryLister
	logger  *slog.Logger
}

// NewInfoHandler creates an InfoHandler.
func NewInfoHandler(apy domain.APYSource, history HistoryLister, logger *slog.Logger) *InfoHandler {
	return &InfoHandler{apy: apy, history: history, logger: logHandler(logger, "info")}
}

// APY reports the vault yield in percent.
// GET /apy
func (h *InfoHandler) APY(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"apy": h.apy.APY(r.Context())})
}

// History lists records, optionally filtered by exact address match.
// GET /history?btcAddress=&starknetAddress=
func (h *InfoHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.history.List(r.Context(), domain.HistoryFilter{
		BTCAddress:      q.Get("btcAddress"),
		StarknetAddress: q.Get("starknetAddress"),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list history", CodeInternal)
		return
	}
	if recs == nil {
		recs = []domain.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.HistoryRecord{"history": recs})
}
