// Package history holds the bounded in-memory operation log.
package history

import (
	"context"
	"sync"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Ring is a fixed-capacity history store. When full, the oldest record is
// evicted and, if an eviction channel was requested, handed to it without
// blocking. Records are returned in insertion order.
type Ring struct {
	mu      sync.RWMutex
	buf     []domain.HistoryRecord
	head    int // index of the oldest record
	size    int
	evicted chan domain.HistoryRecord
	dropped uint64
}

var _ domain.HistoryStore = (*Ring)(nil)

// NewRing creates a Ring holding up to capacity records. evictBuffer > 0
// enables the Evicted channel with that much buffering.
func NewRing(capacity, evictBuffer int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	r := &Ring{buf: make([]domain.HistoryRecord, capacity)}
	if evictBuffer > 0 {
		r.evicted = make(chan domain.HistoryRecord, evictBuffer)
	}
	return r
}

// Append adds rec, evicting the oldest record when full.
func (r *Ring) Append(_ context.Context, rec domain.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = rec
		r.size++
		return nil
	}

	old := r.buf[r.head]
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)

	if r.evicted != nil {
		select {
		case r.evicted <- old:
		default:
			r.dropped++
		}
	}
	return nil
}

// List returns the records matching filter, oldest first.
func (r *Ring) List(_ context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.HistoryRecord, 0)
	for i := 0; i < r.size; i++ {
		rec := r.buf[(r.head+i)%len(r.buf)]
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the number of retained records.
func (r *Ring) Len(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size, nil
}

// Evicted returns the channel of evicted records, or nil when eviction
// forwarding is disabled.
func (r *Ring) Evicted() <-chan domain.HistoryRecord {
	return r.evicted
}

// Dropped counts evicted records lost because the channel was full.
func (r *Ring) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}
