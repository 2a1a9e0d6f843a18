// Package v1 defines the sigrelay signaling protocol v1 contract.
//
// This package is dependency-light and shared between the server, tests and
// client tooling so the wire protocol has a single authoritative definition.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol negotiated for this contract.
const Subprotocol = "sigrelay.v1"

// Type constants (wire-stable).
const (
	// TypeJoin registers a username and public key (client -> server).
	TypeJoin = "join"
	// TypeUserJoined announces a newly joined user (server -> all except joiner).
	TypeUserJoined = "user_joined"
	// TypeUsers carries the full presence snapshot (server -> all).
	TypeUsers = "users"
	// TypeUserLeft announces a disconnected user (server -> all).
	TypeUserLeft = "user_left"

	// TypeKeyExchange requests a session key (client -> server) and delivers a
	// wrapped session key (server -> one peer).
	TypeKeyExchange = "key_exchange"

	// TypePrivateMessage relays opaque ciphertext (client -> server -> one peer).
	TypePrivateMessage = "private_message"

	// TypeError reports a failure to the requesting connection only.
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation for an inbound Envelope.
// Only client-originated types are accepted.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	if !IsInbound(e.Type) {
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	return nil
}

// IsInbound reports whether typ may be sent by a client.
func IsInbound(typ string) bool {
	switch typ {
	case TypeJoin, TypeKeyExchange, TypePrivateMessage:
		return true
	default:
		return false
	}
}

// ---- Inbound payloads ----

// JoinPayload registers the caller under Username with its encoded public key.
type JoinPayload struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

// KeyExchangeRequestPayload asks the server to deliver a session key shared with To.
type KeyExchangeRequestPayload struct {
	To string `json:"to"`
}

// PrivateMessageSendPayload carries ciphertext addressed to To.
type PrivateMessageSendPayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// ---- Outbound payloads ----

// PresenceEntry is one user in the presence snapshot; also the user_joined payload.
type PresenceEntry struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
	IsOnline  bool   `json:"is_online"`
}

// UsersPayload is the full presence snapshot. It is encoded as a bare JSON array.
type UsersPayload []PresenceEntry

// UserLeftPayload announces that Username disconnected.
type UserLeftPayload struct {
	Username string `json:"username"`
}

// KeyExchangePayload delivers the session key shared with From, wrapped under
// the recipient's public key and base64 encoded.
type KeyExchangePayload struct {
	From       string `json:"from"`
	SessionKey string `json:"session_key"`
}

// PrivateMessagePayload delivers ciphertext from From verbatim.
type PrivateMessagePayload struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
