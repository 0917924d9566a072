package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// HistoryStore implements domain.HistoryStore on the history_records table.
// Records are kept whole as JSONB; the address columns exist for filtering.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append inserts rec. Re-inserting an existing id is a no-op.
func (s *HistoryStore) Append(ctx context.Context, rec domain.HistoryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal history record %s: %w", rec.ID, err)
	}

	const query = `
		INSERT INTO history_records
			(id, kind, recorded_at, btc_address, starknet_address, amount, token, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, string(rec.Kind), rec.Timestamp,
		rec.BTCAddress, rec.StarknetAddress, rec.Amount, rec.Token,
		payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: append history record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns matching records oldest first. The result is never nil.
func (s *HistoryStore) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	query, args := listQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	defer rows.Close()

	records := []domain.HistoryRecord{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan history record: %w", err)
		}
		var rec domain.HistoryRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("postgres: decode history record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate history: %w", err)
	}
	return records, nil
}

// Len returns the number of stored records.
func (s *HistoryStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM history_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count history: %w", err)
	}
	return n, nil
}

func listQuery(filter domain.HistoryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.BTCAddress != "" {
		args = append(args, filter.BTCAddress)
		where = append(where, fmt.Sprintf("btc_address = $%d", len(args)))
	}
	if filter.StarknetAddress != "" {
		args = append(args, filter.StarknetAddress)
		where = append(where, fmt.Sprintf("starknet_address = $%d", len(args)))
	}

	query := `SELECT record FROM history_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY seq ASC", args
}

// Compile-time interface check.
var _ domain.HistoryStore = (*HistoryStore)(nil)
