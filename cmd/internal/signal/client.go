package signal

import (
	"sync"

	v1 "sigrelay/shared/contracts/signal/v1"
)

// Client is one attached websocket connection.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals shutdown instead. Close is idempotent.
type Client struct {
	ConnID string
	Send   chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID: connID,
		Send:   make(chan v1.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// enqueue never blocks. A full queue closes the client: a peer that cannot
// keep up is disconnected instead of silently missing protocol events.
func (c *Client) enqueue(env v1.Envelope) (ok, overflow bool) {
	if c.Closed() {
		return false, false
	}
	select {
	case c.Send <- env:
		return true, false
	default:
		c.Close()
		return false, true
	}
}
