// Package hub fans significant playback updates out to every connected
// WebSocket observer. Delivery is best-effort: a slow or dead observer is
// dropped, never waited on.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// sendBuffer is the per-connection queue depth. A connection that falls
	// this far behind is dropped rather than allowed to block a publish.
	sendBuffer = 16

	writeTimeout = 10 * time.Second
	readLimit    = 512
)

// Hub maintains the set of observer connections and the last known wire
// message used to greet new observers.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]*observerConn
	current []byte
}

type observerConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			// Overlays load from OBS browser sources and arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*observerConn),
	}
}

// SetCurrent records msg as the greeting for observers that connect later.
// The poll loop calls this on every poll; Publish on significant ones.
func (h *Hub) SetCurrent(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode message")
		return
	}

	h.mu.Lock()
	h.current = payload
	h.mu.Unlock()
}

// Publish serializes msg once and sends it to every connected observer.
// It also becomes the current greeting.
func (h *Hub) Publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = payload
	for _, c := range h.conns {
		h.sendLocked(c, payload)
	}
}

// sendLocked queues a payload without ever blocking. Must be called with
// h.mu held; a full queue means the observer is stuck, so it is dropped.
func (h *Hub) sendLocked(c *observerConn, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn().Str("conn", c.id).Msg("Observer too slow, dropping")
		h.removeLocked(c)
	}
}

// Handle upgrades an HTTP request to a WebSocket observer connection and
// registers it. If a current message exists it is sent immediately, so a
// new observer never waits for the next significant change.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &observerConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	if h.current != nil {
		h.sendLocked(c, h.current)
	}
	n := len(h.conns)
	h.mu.Unlock()

	h.logger.Info().Str("conn", c.id).Int("observers", n).Msg("Observer connected")

	go h.writePump(c)
	go h.readPump(c)

	return nil
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		h.removeLocked(c)
	}
}

// remove unregisters a connection if it is still registered.
func (h *Hub) remove(c *observerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked must be called with h.mu held. Closing the send channel
// is safe because every send happens under the same lock while the
// connection is still in the map.
func (h *Hub) removeLocked(c *observerConn) {
	if _, ok := h.conns[c.id]; !ok {
		return
	}
	delete(h.conns, c.id)
	close(c.send)
	h.logger.Info().Str("conn", c.id).Int("observers", len(h.conns)).Msg("Observer disconnected")
}

// writePump drains the send queue onto the socket. Exits when the queue is
// closed or a write fails.
func (h *Hub) writePump(c *observerConn) {
	defer c.ws.Close()

	for payload := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug().Str("conn", c.id).Err(err).Msg("Write failed")
			h.remove(c)
			return
		}
	}
}

// readPump discards inbound frames; observers do not talk back. Its only
// job is noticing the peer going away.
func (h *Hub) readPump(c *observerConn) {
	c.ws.SetReadLimit(readLimit)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}
