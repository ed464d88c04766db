package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/takbridge/track"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsPingInterval   = 30 * time.Second
	wsSendBuffer     = 64
	wsBroadcastDepth = 256
)

// trackUpdate is the wire frame pushed to websocket subscribers.
type trackUpdate struct {
	Type  string      `json:"type"`
	Track track.Track `json:"track"`
}

// Hub fans live track updates out to websocket subscribers. Slow
// subscribers are disconnected rather than allowed to stall the feed.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a websocket hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The management API is same-origin or reverse-proxied.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan []byte, wsBroadcastDepth),
		done:      make(chan struct{}),
	}
}

// Run pumps broadcast frames to every connected client until the hub is
// closed or the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case frame := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					// Client cannot keep up, cut it loose.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastTrack queues one track update for all subscribers. Intended
// as a track.UpsertFunc target. Drops the frame when the hub is
// saturated rather than blocking the store write path.
func (h *Hub) BroadcastTrack(t track.Track) {
	frame, err := json.Marshal(trackUpdate{Type: "track", Track: t})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("Dropping track update, broadcast queue full", "uid", t.UID)
	}
}

// HandleUpgrade upgrades an HTTP request to a websocket subscription.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Websocket client connected", "remote", conn.RemoteAddr(), "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains the client's send queue onto the socket and keeps
// the connection alive with pings.
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-h.done:
			return
		}
	}
}

// readPump discards inbound frames; the feed is one-way. It exists to
// notice the peer hanging up.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
			_ = c.conn.Close()
		}
		h.mu.Unlock()
	})
}
