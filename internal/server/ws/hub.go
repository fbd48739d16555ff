// Package ws relays loop events from the signal bus to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/memebot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// channels relayed to clients. New clients start subscribed to all of them.
var channels = []string{domain.ChannelCycles, domain.ChannelPositions}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The monitoring API is authenticated by key, not by origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// command changes a client's channel set:
// {"action":"subscribe","channels":["positions"]}.
type command struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Config carries the metadata sent in the greeting frame.
type Config struct {
	Mode      string
	StartedAt time.Time
	// OpenPositions, when set, is reported in the greeting.
	OpenPositions func() int
	// Replay is how many recent execution entries a new client receives
	// after the greeting. Zero disables replay.
	Replay int
}

// Hub fans bus messages out to connected clients. A client that cannot keep
// up loses messages rather than slowing the others.
type Hub struct {
	bus    domain.SignalBus
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode)); cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]struct{}),
	}
}

// Run relays every channel until ctx is cancelled, then disconnects all
// clients. It returns ctx.Err() or the first subscription failure.
func (h *Hub) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channels {
		g.Go(func() error { return h.relay(gctx, ch) })
	}
	err := g.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.stop()
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if err == nil {
		err = ctx.Err()
	}
	return err
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) relay(ctx context.Context, channel string) error {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				h.logger.WarnContext(ctx, "subscription closed", slog.String("channel", channel))
				<-ctx.Done()
				return ctx.Err()
			}
			h.broadcast(channel, data)
		}
	}
}

func (h *Hub) broadcast(channel string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) && !c.offer(data) {
			h.logger.Warn("dropping message for slow client", slog.String("channel", channel))
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.stop()
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

// HandleWS upgrades the request, sends the greeting and any replayed
// executions, and starts the client's pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn)
	c.offer(h.greeting())
	for _, msg := range h.replay(r.Context()) {
		c.offer(msg)
	}
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go func() {
		c.readPump(h.logger)
		h.remove(c)
	}()
}

func (h *Hub) greeting() []byte {
	payload := map[string]any{
		"mode":           h.cfg.Mode,
		"uptime_seconds": max(0, int64(time.Since(h.cfg.StartedAt).Seconds())),
		"channels":       channels,
	}
	if h.cfg.OpenPositions != nil {
		payload["open_positions"] = h.cfg.OpenPositions()
	}
	msg, _ := json.Marshal(domain.Event{Type: "bot_status", At: time.Now().UTC(), Payload: payload})
	return msg
}

// replay returns the last cfg.Replay execution events, oldest first.
func (h *Hub) replay(ctx context.Context) [][]byte {
	if h.cfg.Replay <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entries, err := h.bus.StreamTail(ctx, domain.StreamExecutions, h.cfg.Replay)
	if err != nil {
		h.logger.WarnContext(ctx, "execution replay failed", slog.String("error", err.Error()))
		return nil
	}
	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Payload)
	}
	return out
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	mu   sync.RWMutex
	subs map[string]bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}
	return c
}

// offer queues msg without blocking and reports whether it was queued. Once
// the client is registered, offer and stop only run under the hub lock.
func (c *client) offer(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) stop() { c.once.Do(func() { close(c.send) }) }

func (c *client) apply(cmd command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range cmd.Channels {
		if !slices.Contains(channels, ch) {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func (c *client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *client) readPump(logger *slog.Logger) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var cmd command
		if json.Unmarshal(data, &cmd) == nil {
			c.apply(cmd)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
