package signal

import (
	"log/slog"
	"sync"

	v1 "sigrelay/shared/contracts/signal/v1"
)

// Hub tracks attached connections and implements Transport over their send
// queues.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a Hub. metrics may be nil.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: metrics,
		clients: make(map[string]*Client),
	}
}

// Attach registers c so it receives sends and broadcasts.
func (h *Hub) Attach(c *Client) {
	if c == nil || c.ConnID == "" {
		return
	}

	h.mu.Lock()
	_, existed := h.clients[c.ConnID]
	h.clients[c.ConnID] = c
	h.mu.Unlock()

	if !existed {
		h.metrics.connOpened()
	}
}

// Detach removes connID and closes its client. Safe to call more than once.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	delete(h.clients, connID)
	h.mu.Unlock()

	// Close after removal so no broadcaster holds a pointer to a torn-down client.
	if ok {
		c.Close()
		h.metrics.connClosed()
	}
}

// Len returns the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attached implements Transport. A client closed on overflow counts as gone
// even before the gateway detaches it.
func (h *Hub) Attached(connID string) bool {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	return c != nil && !c.Closed()
}

// Send implements Transport.
func (h *Hub) Send(connID string, env v1.Envelope) bool {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()

	if c == nil {
		h.metrics.droppedSend()
		return false
	}
	return h.deliver(c, env)
}

// Broadcast implements Transport.
func (h *Hub) Broadcast(env v1.Envelope, exceptConnID string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, env)
	}
}

func (h *Hub) deliver(c *Client, env v1.Envelope) bool {
	ok, overflow := c.enqueue(env)
	if !ok {
		h.metrics.droppedSend()
	}
	if overflow {
		h.log.Warn("ws.send.overflow", "conn_id", c.ConnID, "type", env.Type)
	}
	return ok
}

var _ Transport = (*Hub)(nil)
