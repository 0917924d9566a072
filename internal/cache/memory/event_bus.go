package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

const subscriberBuffer = 128

// EventBus fans published payloads out to in-process subscribers. A slow
// subscriber misses messages rather than blocking publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish delivers payload to every current subscriber of channel.
func (b *EventBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel until ctx is
// cancelled, at which point it is closed.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

var _ domain.EventBus = (*EventBus)(nil)

// Subscribers returns the number of live subscriptions to channel.
func (b *EventBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
