// Package audit records relay metadata (presence changes and key exchange
// outcomes) to a durable store.
//
// Events never carry chat content or key material.
package audit

import (
	"context"
	"time"
)

// Event kinds (stable; persisted).
const (
	KindPresenceJoin         = "presence.join"
	KindPresenceLeave        = "presence.leave"
	KindKeyExchangeDelivered = "key_exchange.delivered"
	KindKeyExchangeFailed    = "key_exchange.failed"
)

// Event is one audit record.
type Event struct {
	Kind     string
	Username string
	Peer     string
	ConnID   string
	Detail   string
	At       time.Time
}

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, ev Event) error
	Close() error
}

// NopStore discards everything.
type NopStore struct{}

func (NopStore) Insert(context.Context, Event) error { return nil }
func (NopStore) Close() error                        { return nil }
