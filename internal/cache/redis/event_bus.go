package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// EventBus carries live history events over Redis Pub/Sub so a websocket
// client connected to any replica sees operations served by all of them.
type EventBus struct {
	c *Client
}

var _ domain.EventBus = (*EventBus)(nil)

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{c: c}
}

// Publish sends payload on the namespaced channel. Delivery is best effort:
// nobody listening is not an error.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.c.rdb.Publish(ctx, b.c.Key("events", channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns payloads published on channel until ctx ends, at which
// point the subscription and the returned channel are closed. It waits for
// Redis to confirm the subscription before returning.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.c.rdb.Subscribe(ctx, b.c.Key("events", channel))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	in := sub.Channel(redis.WithChannelSize(128))
	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			var msg *redis.Message
			var ok bool
			select {
			case <-ctx.Done():
				return
			case msg, ok = <-in:
				if !ok {
					return
				}
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
