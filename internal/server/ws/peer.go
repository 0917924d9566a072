package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 4096
	queueSize    = 256
)

// filterMsg narrows the feed to one address pair:
// {"action":"filter","btcAddress":"...","starknetAddress":"..."}.
type filterMsg struct {
	Action          string `json:"action"`
	BTCAddress      string `json:"btcAddress"`
	StarknetAddress string `json:"starknetAddress"`
}

// peer is one connected socket. The hub enqueues frames; writeLoop is the
// only writer on conn.
type peer struct {
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once

	mu     sync.RWMutex
	filter domain.HistoryFilter
}

func newPeer(conn *websocket.Conn, filter domain.HistoryFilter) *peer {
	return &peer{
		conn:   conn,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
		filter: filter,
	}
}

// enqueue reports false when the peer's queue is full or it is closed.
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *peer) wants(rec domain.HistoryRecord) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter.Match(rec)
}

// readLoop applies filter updates and keeps the read deadline alive via pongs
// until the connection fails.
func (p *peer) readLoop(logger *slog.Logger) {
	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg filterMsg
		if json.Unmarshal(data, &msg) != nil || msg.Action != "filter" {
			continue
		}
		p.mu.Lock()
		p.filter = domain.HistoryFilter{BTCAddress: msg.BTCAddress, StarknetAddress: msg.StarknetAddress}
		p.mu.Unlock()
	}
}

func (p *peer) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-p.queue:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
