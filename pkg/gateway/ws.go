package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcpgate/gateway/pkg/logger"
)

// Event is one asynchronous notification fanned out to every connected
// WebSocket client: server installed, updated, uninstalled.
type Event struct {
	Type      string    `json:"type"`
	Server    string    `json:"server,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types published by the management API.
const (
	EventServerInstalled   = "server_installed"
	EventServerUpdated     = "server_updated"
	EventServerUninstalled = "server_uninstalled"
)

const (
	wsWriteWait     = 10 * time.Second
	wsClientBacklog = 32
)

// Hub fans events out to connected WebSocket clients. Slow clients are
// disconnected rather than buffered without bound.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The gateway listener is loopback-only and CORS is open; the
			// same policy applies to the upgrade handshake.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Router mounts the upgrade handler at the hub's mount point.
func (h *Hub) Router() http.Handler {
	return http.HandlerFunc(h.handleUpgrade)
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("ws: upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan Event, wsClientBacklog)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	go h.readLoop(client)
}

// writeLoop drains the client's send queue onto the wire. Exits (and drops
// the client) on the first write failure or when the queue is closed.
func (h *Hub) writeLoop(c *wsClient) {
	defer h.drop(c)
	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards inbound frames; the event stream is one-way. It exists
// to observe the close handshake so drop runs when the peer goes away.
func (h *Hub) readLoop(c *wsClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop unregisters c and closes its send queue. Closing the queue happens
// under h.mu so Publish, which also sends under h.mu, can never race a send
// against the close.
func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	if present {
		close(c.send)
	}
	h.mu.Unlock()

	_ = c.conn.Close()
}

// Publish fans ev out to every connected client. Never blocks: a client
// whose backlog is full is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var slow []*wsClient
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		logger.Warnf("ws: dropping slow client")
		h.drop(c)
	}
}

// Close disconnects every client and refuses new upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}
