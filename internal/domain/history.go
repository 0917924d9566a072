package domain

import (
	"context"
	"encoding/json"
	"time"
)

// HistoryKind classifies a history record.
type HistoryKind string

const (
	KindDeposit        HistoryKind = "deposit"
	KindDepositIntent  HistoryKind = "deposit_intent"
	KindWithdraw       HistoryKind = "withdraw"
	KindWithdrawIntent HistoryKind = "withdraw_intent"
	KindQuote          HistoryKind = "quote"
)

// HistoryRecord is an append-only audit entry created by every mutating call.
// Records are never updated or deleted by the API.
type HistoryRecord struct {
	ID              string         `json:"id"`
	Kind            HistoryKind    `json:"type"`
	Timestamp       time.Time      `json:"timestamp"`
	BTCAddress      string         `json:"btcAddress,omitempty"`
	StarknetAddress string         `json:"starknetAddress,omitempty"`
	Amount          float64        `json:"amount"`
	Token           string         `json:"token,omitempty"`
	Batch           bool           `json:"batch,omitempty"`
	Bridge          *BridgeResult  `json:"bridge,omitempty"`
	Onchain         *OnchainResult `json:"onchain,omitempty"`
	OnchainTxHash   string         `json:"onchainTxHash,omitempty"`
	Quote           *Quote         `json:"quote,omitempty"`
}

// MarshalJSON adds "t", the record time in epoch milliseconds, next to the
// RFC 3339 "timestamp".
func (r HistoryRecord) MarshalJSON() ([]byte, error) {
	type plain HistoryRecord
	return json.Marshal(struct {
		plain
		T int64 `json:"t"`
	}{plain(r), r.Timestamp.UnixMilli()})
}

// HistoryFilter selects records by exact address match. Empty fields match
// everything; when both are set a record must match both.
type HistoryFilter struct {
	BTCAddress      string
	StarknetAddress string
}

// Match reports whether rec satisfies the filter.
func (f HistoryFilter) Match(rec HistoryRecord) bool {
	if f.BTCAddress != "" && rec.BTCAddress != f.BTCAddress {
		return false
	}
	if f.StarknetAddress != "" && rec.StarknetAddress != f.StarknetAddress {
		return false
	}
	return true
}

// HistoryStore persists history records in insertion order.
type HistoryStore interface {
	Append(ctx context.Context, rec HistoryRecord) error
	List(ctx context.Context, filter HistoryFilter) ([]HistoryRecord, error)
	Len(ctx context.Context) (int, error)
}

// HistoryArchiver moves records evicted from a bounded store to cold storage.
type HistoryArchiver interface {
	Archive(ctx context.Context, records []HistoryRecord) (string, error)
}
