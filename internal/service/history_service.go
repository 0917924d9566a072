package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/metrics"
)

// HistoryChannel is the event bus channel carrying appended records.
const HistoryChannel = "history"

// HistoryService stamps, stores and broadcasts history records.
type HistoryService struct {
	store  domain.HistoryStore
	bus    domain.EventBus
	now    func() time.Time
	logger *slog.Logger
}

// NewHistoryService creates a HistoryService. bus may be nil.
func NewHistoryService(store domain.HistoryStore, bus domain.EventBus, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		store:  store,
		bus:    bus,
		now:    time.Now,
		logger: logger.With(slog.String("component", "history")),
	}
}

// Record assigns an id and timestamp to rec and appends it.
func (s *HistoryService) Record(ctx context.Context, rec domain.HistoryRecord) (domain.HistoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}

	if err := s.store.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("history_service: append %s: %w", rec.Kind, err)
	}

	if n, err := s.store.Len(ctx); err == nil {
		metrics.HistoryRecords.Set(float64(n))
	}

	if s.bus != nil {
		payload, _ := json.Marshal(rec)
		if err := s.bus.Publish(ctx, HistoryChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "publish history event failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return rec, nil
}

// List returns records matching filter in insertion order.
func (s *HistoryService) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	recs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("history_service: list: %w", err)
	}
	return recs, nil
}
