// Package ws bridges the Redis signal bus to browser WebSocket clients so
// bet pages update live as ledger events land.
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

	"github.com/betpal/betpal/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay under pongWait
	maxMessageSize = 4096
	sessionBuffer  = 256
)

// defaultChannels are the bus channels the hub bridges: one pattern covering
// every bet's event channel plus the shared public feed.
var defaultChannels = []string{"ch:bet:*", "ch:feed"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks happen in the CORS layer; the hub accepts any upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// event carries a bus payload with its source channel so the hub can route
// it only to sessions subscribed to that channel.
type event struct {
	channel string
	data    []byte
}

// session is one connected WebSocket client with its channel subscriptions.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON frame a client sends to manage its channel set,
// e.g. {"action":"subscribe","channels":["ch:bet:1234"]}.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// Hub fans bus events out to the connected sessions.
type Hub struct {
	sessions  map[*session]bool
	events    chan event
	attach    chan *session
	detach    chan *session
	bus       domain.SignalBus
	mu        sync.RWMutex
	logger    *slog.Logger
	startedAt time.Time
}

// NewHub creates a hub bridging the given SignalBus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:  make(map[*session]bool),
		events:    make(chan event, 256),
		attach:    make(chan *session),
		detach:    make(chan *session),
		bus:       bus,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

// Run is the hub's event loop: it opens the bus subscriptions, then serves
// session attach/detach and event fan-out until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range defaultChannels {
		go h.pumpBus(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				close(s.out)
				delete(h.sessions, s)
			}
			h.mu.Unlock()
			return ctx.Err()

		case s := <-h.attach:
			h.mu.Lock()
			h.sessions[s] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("sessions", h.sessionCount()))

		case s := <-h.detach:
			h.mu.Lock()
			if h.sessions[s] {
				delete(h.sessions, s)
				close(s.out)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("sessions", h.sessionCount()))

		case ev := <-h.events:
			h.mu.RLock()
			for s := range h.sessions {
				if !s.subscribed(ev.channel) {
					continue
				}
				select {
				case s.out <- ev.data:
				default:
					// Full buffer means a stalled reader; drop rather
					// than block the whole hub.
					h.logger.Warn("ws: dropping event for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pumpBus forwards one bus subscription into the hub's event channel.
// Events are tagged with the channel they were published on, so a session
// narrowed to a single bet's channel matches even though the hub itself
// subscribes via the ch:bet:* pattern.
func (h *Hub) pumpBus(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			h.events <- event{channel: sig.Channel, data: sig.Payload}
		}
	}
}

// HandleWS upgrades the request and attaches the new session to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		hub:  h,
		conn: conn,
		out:  make(chan []byte, sessionBuffer),
		subs: make(map[string]bool, len(defaultChannels)),
	}
	for _, ch := range defaultChannels {
		s.subs[ch] = true
	}

	h.attach <- s
	s.sendHello()

	go s.writePump()
	go s.readPump()
}

func (h *Hub) sessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// readPump consumes client frames, which only ever carry subscription
// management requests, and keeps the read deadline fresh via pongs.
func (s *session) readPump() {
	defer func() {
		s.hub.detach <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(frame, &msg); err == nil && msg.Action != "" {
			s.applySubscription(msg)
		}
	}
}

func (s *session) applySubscription(msg subscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			s.subs[ch] = true
		case "unsubscribe":
			delete(s.subs, ch)
		}
	}
}

// sendHello pushes a small envelope so clients can mark the connection
// healthy before any bet events flow.
func (s *session) sendHello() {
	uptime := max(int64(time.Since(s.hub.startedAt).Seconds()), 0)

	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"connected":      true,
			"uptime_seconds": uptime,
			"channels":       defaultChannels,
		},
	})
	if err != nil {
		return
	}

	select {
	case s.out <- msg:
	default:
	}
}

// subscribed reports whether channel matches any of the session's
// subscriptions, honouring trailing-* patterns like ch:bet:*.
func (s *session) subscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.subs[channel] {
		return true
	}
	for sub := range s.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump writes hub events as JSON text frames and keeps the connection
// alive with periodic pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
