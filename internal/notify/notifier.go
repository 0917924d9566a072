// Package notify delivers operator alerts about bridge operations to chat
// channels (Telegram, Discord). Alerts are filtered by event so operators
// receive only what they subscribed to.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Event names an alert type. The values match the notify.events config list.
type Event string

const (
	EventDeposit             Event = "deposit"
	EventWithdraw            Event = "withdraw"
	EventOrchestrationFailed Event = "orchestration_failed"
)

// Message is a rendered alert.
type Message struct {
	Event Event
	Title string
	Lines []string
}

// Body joins the message lines.
func (m Message) Body() string { return strings.Join(m.Lines, "\n") }

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Failure describes an operation that broke after funds started moving.
type Failure struct {
	Kind   domain.HistoryKind
	Mode   domain.Mode
	Phase  string
	Record domain.HistoryRecord
	Err    error
}

// Notifier dispatches alerts to every Sender whose event is enabled.
type Notifier struct {
	senders []Sender
	events  map[Event]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If events is empty, all events pass.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[Event]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[Event(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// OperationCompleted announces a recorded deposit or withdraw.
func (n *Notifier) OperationCompleted(ctx context.Context, mode domain.Mode, rec domain.HistoryRecord) {
	event := EventDeposit
	if rec.Kind == domain.KindWithdraw || rec.Kind == domain.KindWithdrawIntent {
		event = EventWithdraw
	}
	msg := Message{
		Event: event,
		Title: fmt.Sprintf("%s %s", strings.ReplaceAll(string(rec.Kind), "_", " "), formatAmount(rec.Amount, rec.Token)),
		Lines: recordLines(mode, rec),
	}
	_ = n.Notify(ctx, msg)
}

// OperationFailed raises an alert for a half-finished operation. Nothing is
// rolled back automatically, so the alert carries everything needed to
// reconcile by hand.
func (n *Notifier) OperationFailed(ctx context.Context, f Failure) {
	lines := []string{
		"phase: " + f.Phase,
		"error: " + errString(f.Err),
	}
	msg := Message{
		Event: EventOrchestrationFailed,
		Title: fmt.Sprintf("%s failed after %s", f.Kind, f.Phase),
		Lines: append(lines, recordLines(f.Mode, f.Record)...),
	}
	_ = n.Notify(ctx, msg)
}

// Notify sends msg to all senders if its event is enabled. A failing sender
// does not prevent delivery to the others.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[msg.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(msg.Event)))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func recordLines(mode domain.Mode, rec domain.HistoryRecord) []string {
	lines := []string{"mode: " + string(mode)}
	if rec.BTCAddress != "" {
		lines = append(lines, "btc: "+rec.BTCAddress)
	}
	if rec.StarknetAddress != "" {
		lines = append(lines, "starknet: "+rec.StarknetAddress)
	}
	if rec.Bridge != nil {
		lines = append(lines, "bridge tx: "+rec.Bridge.TransactionID)
	}
	if rec.Onchain != nil {
		lines = append(lines, "onchain tx: "+rec.Onchain.TransactionHash)
	}
	if rec.OnchainTxHash != "" {
		lines = append(lines, "user tx: "+rec.OnchainTxHash)
	}
	return lines
}

func formatAmount(amount float64, token string) string {
	if token == "" {
		token = "BTC"
	}
	return fmt.Sprintf("%g %s", amount, token)
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

// postJSON sends payload to url and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
