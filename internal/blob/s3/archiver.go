package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// Archiver writes batches of history records to object storage as JSONL
// under history/YYYY/MM/DD/<uuid>.jsonl, dated by the upload time.
type Archiver struct {
	writer domain.BlobWriter
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.HistoryArchiver = (*Archiver)(nil)

// NewArchiver creates an Archiver uploading through writer.
func NewArchiver(writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		now:    time.Now,
		logger: logger.With(slog.String("component", "history_archiver")),
	}
}

// Archive uploads records as one object and returns its key. An empty batch
// uploads nothing and returns "".
func (a *Archiver) Archive(ctx context.Context, records []domain.HistoryRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive history marshal: %w", err)
	}

	path := archivePath(a.now(), uuid.NewString())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), int64(len(buf)), jsonlContentType); err != nil {
		return "", fmt.Errorf("s3blob: archive history upload: %w", err)
	}
	return path, nil
}

// Run batches records from in and archives a batch when it reaches
// batchSize or when interval elapses with records pending. Pending records
// are flushed when ctx is cancelled or in is closed. Upload failures are
// logged and the batch is dropped.
func (a *Archiver) Run(ctx context.Context, in <-chan domain.HistoryRecord, batchSize int, interval time.Duration) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]domain.HistoryRecord, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		path, err := a.Archive(ctx, batch)
		if err != nil {
			a.logger.Error("archive history batch failed",
				slog.Int("records", len(batch)),
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.Info("archived history batch",
				slog.Int("records", len(batch)),
				slog.String("path", path),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			flush(flushCtx)
			cancel()
			return nil
		case rec, ok := <-in:
			if !ok {
				flush(ctx)
				return nil
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// archivePath builds the object key for one archive batch.
//
//	history/2026/03/01/9b2f...e1.jsonl
func archivePath(at time.Time, id string) string {
	return fmt.Sprintf("history/%s/%s.jsonl", at.UTC().Format("2006/01/02"), id)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
