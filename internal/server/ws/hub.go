// Package ws relays live operation events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// envelope is the frame sent to clients. Type is "status" for the greeting
// and the bus channel name for relayed events.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      domain.Mode
	Channels  []string
	Origins   []string
	StartedAt time.Time
}

// Hub fans history events from the bus out to connected sockets, each
// narrowed to the addresses it asked for.
type Hub struct {
	bus      domain.EventBus
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

// NewHub creates a hub relaying cfg.Channels from bus.
func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus: bus,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Origins),
		},
		logger: logger.With(slog.String("component", "ws_hub")),
		peers:  make(map[*peer]struct{}),
	}
}

// originChecker allows every origin when origins is empty or contains "*".
// Requests without an Origin header are not from browsers and pass.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run relays every configured channel until ctx ends, then disconnects all
// peers.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range h.cfg.Channels {
		g.Go(func() error {
			return h.relay(ctx, ch)
		})
	}
	err := g.Wait()

	h.mu.Lock()
	for p := range h.peers {
		p.close()
		delete(h.peers, p)
	}
	h.mu.Unlock()
	return err
}

func (h *Hub) relay(ctx context.Context, channel string) error {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return nil
	}
	h.logger.InfoContext(ctx, "relaying channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", channel))
				return nil
			}
			h.broadcast(channel, data)
		}
	}
}

func (h *Hub) broadcast(channel string, data []byte) {
	frame, err := json.Marshal(envelope{Type: channel, Payload: data})
	if err != nil {
		return
	}
	var rec domain.HistoryRecord
	_ = json.Unmarshal(data, &rec)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		if p.wants(rec) && !p.enqueue(frame) {
			h.logger.Warn("dropping event for slow client", slog.String("channel", channel))
		}
	}
}

// HandleWS upgrades GET /ws. The optional btcAddress and starknetAddress
// query parameters set the initial filter.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	q := r.URL.Query()
	p := newPeer(conn, domain.HistoryFilter{
		BTCAddress:      q.Get("btcAddress"),
		StarknetAddress: q.Get("starknetAddress"),
	})
	p.enqueue(h.statusFrame())

	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("clients", n))

	go p.writeLoop()
	go func() {
		p.readLoop(h.logger)
		h.drop(p)
	}()
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	n := len(h.peers)
	h.mu.Unlock()
	if ok {
		p.close()
		h.logger.Info("client disconnected", slog.Int("clients", n))
	}
}

// statusFrame lets a client mark the feed live before any operation happens.
func (h *Hub) statusFrame() []byte {
	uptime := max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0)
	payload, _ := json.Marshal(struct {
		Mode   domain.Mode `json:"mode"`
		Uptime int64       `json:"uptime_seconds"`
	}{h.cfg.Mode, uptime})
	frame, _ := json.Marshal(envelope{Type: "status", Payload: payload})
	return frame
}
