package transport

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Subscribers is the subscriber-transport interface the publish tick
// hands serialized frames to.
type Subscribers interface {
	Publish(data []byte)
}

// sendBuffer bounds each client's outgoing queue; a slow subscriber
// drops frames rather than stalling the publish tick.
const sendBuffer = 256

// client is one connected WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}

// Hub is a WebSocket subscriber-transport reference implementation: a
// registry of client connections guarded by a mutex, a buffered
// per-client send channel, drop-on-full semantics.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("transport: upgrade:", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go c.writePump()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
	}()

	// Subscribers are read-only; drain and discard anything they send
	// (keep-alive pings, stray client messages) until they disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish fans a serialized frame out to every registered client,
// dropping it for any client whose send buffer is full.
func (h *Hub) Publish(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount reports the number of connected subscribers, used by health().
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ Subscribers = (*Hub)(nil)
