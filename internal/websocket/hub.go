package websocket

import (
	"sync"

	"github.com/voltlabs/volt/internal/logging"
	"go.uber.org/zap"
)

// Hub is the registry of connected clients used for broadcasts.
type Hub struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*Conn]struct{})}
}

// Add registers c and removes it again once it disconnects.
func (h *Hub) Add(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-c.Done()
		logging.Debug("Removing connection", zap.String("remote_addr", c.RemoteAddr()))
		h.Remove(c)
	}()
}

// Remove unregisters c.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Snapshot returns the registered connections.
func (h *Hub) Snapshot() []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast sends payload to every registered connection. Each send runs on
// its own goroutine; a failing client does not affect the others.
func (h *Hub) Broadcast(payload []byte, binaryData bool) {
	for _, c := range h.Snapshot() {
		go func(c *Conn) {
			if err := c.Send(payload, binaryData); err != nil {
				logging.Debug("Broadcast not delivered",
					zap.String("remote_addr", c.RemoteAddr()),
					zap.Error(err),
				)
			}
		}(c)
	}
}

// CloseAll disconnects every registered connection.
func (h *Hub) CloseAll() {
	for _, c := range h.Snapshot() {
		c.Close()
	}
}
