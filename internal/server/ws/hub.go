// Package ws streams risk and position events from the Redis signal bus to
// WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Channels relayed to clients.
var Channels = []string{domain.ChannelRiskEvents, domain.ChannelPositions}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS and auth middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscriber is the part of the signal bus the hub consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Envelope is the frame sent to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// subscribeMsg is what a client sends to change its channel set.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type broadcastMsg struct {
	channel string
	userID  int64
	frame   []byte
}

// Config carries the metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub fans signal bus messages out to connected clients. A client connected
// with ?user=<id> only receives events of that user.
type Hub struct {
	bus    Subscriber
	cfg    Config
	logger *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan broadcastMsg
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub reading from bus.
func NewHub(bus Subscriber, cfg Config, logger *slog.Logger) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Hub{
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws")),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan broadcastMsg, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run subscribes to the event channels and serves clients until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range Channels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.ErrorContext(ctx, "subscribe failed",
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
			continue
		}
		go h.relay(ctx, ch, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n), slog.Int64("user_id", c.userID))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- msg.frame:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("channel", msg.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", channel))
				return
			}
			if !json.Valid(data) {
				continue
			}
			var head struct {
				UserID int64 `json:"user_id"`
			}
			_ = json.Unmarshal(data, &head)
			frame, err := json.Marshal(Envelope{Type: "event", Channel: channel, Data: data})
			if err != nil {
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, userID: head.UserID, frame: frame}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws?user=<id>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if v := r.URL.Query().Get("user"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, `{"error":"invalid user"}`, http.StatusBadRequest)
			return
		}
		userID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]bool, len(Channels)),
		userID: userID,
	}
	for _, ch := range Channels {
		c.subs[ch] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int64 // 0 receives every user's events

	mu   sync.RWMutex
	subs map[string]bool
}

func (c *client) wants(msg broadcastMsg) bool {
	if c.userID != 0 && msg.userID != c.userID {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[msg.channel]
}

func (c *client) sendHello() {
	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.cfg.Mode,
		"uptime_seconds": int64(time.Since(c.hub.cfg.StartedAt).Seconds()),
		"channels":       Channels,
		"user_id":        c.userID,
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(Envelope{Type: "hello", Data: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil {
			c.apply(sub)
		}
	}
}

// apply changes the subscription set. Unknown channels are ignored.
func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		if !slices.Contains(Channels, ch) {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
