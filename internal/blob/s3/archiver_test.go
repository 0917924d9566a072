package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    bool
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ int64, contentType string) error {
	if w.fail {
		return errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects[path] = b
	w.types[path] = contentType
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.objects)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func records(n int) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, n)
	for i := range out {
		out[i] = domain.HistoryRecord{ID: string(rune('a' + i)), Kind: domain.KindQuote, Amount: float64(i)}
	}
	return out
}

func TestArchiveWritesJSONL(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, discard())
	a.now = func() time.Time { return time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC) }

	path, err := a.Archive(context.Background(), records(3))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "history/2026/03/01/"))
	assert.True(t, strings.HasSuffix(path, ".jsonl"))
	assert.Equal(t, jsonlContentType, w.types[path])

	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	var got []domain.HistoryRecord
	for sc.Scan() {
		var rec domain.HistoryRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		got = append(got, rec)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)
}

func TestArchiveEmptyBatch(t *testing.T) {
	w := newMemWriter()
	path, err := NewArchiver(w, discard()).Archive(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Zero(t, w.count())
}

func TestArchiveUploadError(t *testing.T) {
	w := newMemWriter()
	w.fail = true
	_, err := NewArchiver(w, discard()).Archive(context.Background(), records(1))
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestRunBatchesAndFlushesOnClose(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, discard())
	in := make(chan domain.HistoryRecord)

	done := make(chan error)
	go func() { done <- a.Run(context.Background(), in, 2, time.Hour) }()

	for _, rec := range records(5) {
		in <- rec
	}
	close(in)
	require.NoError(t, <-done)

	// Two full batches plus the remainder.
	assert.Equal(t, 3, w.count())
}

func TestRunFlushesOnCancel(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, discard())
	in := make(chan domain.HistoryRecord, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- a.Run(ctx, in, 100, time.Hour) }()
	in <- records(1)[0]
	assert.Eventually(t, func() bool { return len(in) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, w.count())
}
