package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		d, err := rl.Allow(ctx, "global", 60, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
	}
	d, _ := rl.Allow(ctx, "global", 60, time.Minute)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Equal(t, now.Add(time.Minute), d.ResetAt)

	// Other keys are independent.
	d, _ = rl.Allow(ctx, "10.0.0.1", 60, time.Minute)
	assert.True(t, d.Allowed)

	now = now.Add(time.Minute)
	d, _ = rl.Allow(ctx, "global", 60, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 59, d.Remaining)
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := bus.Subscribe(ctx, "history")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "history")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	assert.Equal(t, 2, bus.Subscribers("history"))
	require.NoError(t, bus.Publish(ctx, "history", []byte("x")))
	assert.Equal(t, []byte("x"), <-a)
	assert.Equal(t, []byte("x"), <-b)
	assert.Empty(t, other)

	cancel()
	_, open := <-a
	for open {
		_, open = <-a
	}
	assert.Eventually(t, func() bool {
		return bus.Subscribers("history") == 0 && bus.Subscribers("other") == 0
	}, time.Second, 10*time.Millisecond)
}
