// Package quotelog records every produced quote into a write-ahead log.
// Recording never blocks the request path: quotes are queued on a bounded
// channel and a single writer drains it.
package quotelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vadiminshakov/gowal"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

const (
	segmentThreshold = 1000
	maxSegments      = 100
	keyPrefix        = "quote_"
)

// Entry is one logged quote.
type Entry struct {
	Time  time.Time    `json:"time"`
	Quote domain.Quote `json:"quote"`
}

// Log is the WAL-backed quote sink.
type Log struct {
	wal    *gowal.Wal
	queue  chan Entry
	onDrop func()
	logger *slog.Logger

	mu sync.RWMutex // guards wal index allocation and reads
}

var _ domain.QuoteLog = (*Log)(nil)

// Open creates or reopens the WAL under dir. buffer bounds the number of
// quotes waiting to be written. onDrop, if non-nil, is called for every
// quote discarded because the queue was full.
func Open(dir string, buffer int, onDrop func(), logger *slog.Logger) (*Log, error) {
	if buffer <= 0 {
		buffer = 256
	}
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "quotes_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: false,
	})
	if err != nil {
		return nil, fmt.Errorf("quotelog: open wal: %w", err)
	}
	return &Log{
		wal:    wal,
		queue:  make(chan Entry, buffer),
		onDrop: onDrop,
		logger: logger.With(slog.String("component", "quotelog")),
	}, nil
}

// Record enqueues q. It returns immediately; a full queue drops the quote.
func (l *Log) Record(q domain.Quote) {
	select {
	case l.queue <- Entry{Time: time.Now().UTC(), Quote: q}:
	default:
		if l.onDrop != nil {
			l.onDrop()
		}
	}
}

// Run drains the queue into the WAL until ctx is cancelled, then flushes
// whatever is still queued.
func (l *Log) Run(ctx context.Context) error {
	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return nil
				}
			}
		}
	}
}

func (l *Log) write(e Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		l.logger.Warn("quote marshal failed", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.wal.CurrentIndex() + 1
	if err := l.wal.Write(idx, fmt.Sprintf("%s%d", keyPrefix, idx), payload); err != nil {
		l.logger.Warn("quote log write failed", slog.String("error", err.Error()))
	}
}

// Since returns the entries written after index, oldest first. A record that
// fails its checksum aborts the read.
func (l *Log) Since(index uint64) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	current := l.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}
	out := make([]Entry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := l.wal.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("quotelog: read entry %d: %w", idx, err)
		}
		if key == "" {
			// evicted with an old segment
			continue
		}
		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("quotelog: decode entry %d: %w", idx, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Close closes the WAL. Call it after Run has returned.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wal.Close()
}
