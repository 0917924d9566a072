package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/cache/memory"
	"github.com/alanyoungcy/shuttle/internal/domain"
)

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubRelaysFilteredHistory(t *testing.T) {
	bus := memory.NewEventBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:     domain.ModeOwner,
		Channels: []string{"history"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?btcAddress=tb1qmine"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readEnvelope(t, conn)
	assert.Equal(t, "status", status.Type)
	assert.Contains(t, string(status.Payload), `"mode":"owner"`)

	// The hub subscribes asynchronously.
	other, _ := json.Marshal(domain.HistoryRecord{ID: "1", BTCAddress: "tb1qother"})
	mine, _ := json.Marshal(domain.HistoryRecord{ID: "2", BTCAddress: "tb1qmine"})
	require.Eventually(t, func() bool {
		return bus.Subscribers("history") > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, "history", other))
	require.NoError(t, bus.Publish(ctx, "history", mine))

	env := readEnvelope(t, conn)
	assert.Equal(t, "history", env.Type)
	var rec domain.HistoryRecord
	require.NoError(t, json.Unmarshal(env.Payload, &rec))
	assert.Equal(t, "2", rec.ID)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
