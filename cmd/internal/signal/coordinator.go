package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"sigrelay/cmd/internal/audit"
	"sigrelay/cmd/security/wrap"
	v1 "sigrelay/shared/contracts/signal/v1"
)

// Auditor receives presence and key exchange metadata. *audit.Recorder
// satisfies it.
type Auditor interface {
	Record(ev audit.Event) bool
}

// Coordinator owns the relay state and runs the protocol for each inbound
// event. Independent instances share nothing.
type Coordinator struct {
	log       *slog.Logger
	transport Transport
	wrapper   wrap.Wrapper
	registry  *Registry
	keys      *SessionKeyStore
	metrics   *Metrics
	auditor   Auditor
	now       func() time.Time

	// lifecycle orders a join's liveness check and registration against
	// Disconnect. The transport detaches a connection before disconnecting it.
	lifecycle sync.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRegistry replaces the default empty registry.
func WithRegistry(r *Registry) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithSessionKeys replaces the default session key store.
func WithSessionKeys(s *SessionKeyStore) CoordinatorOption {
	return func(c *Coordinator) {
		if s != nil {
			c.keys = s
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithAuditor attaches an audit sink.
func WithAuditor(a Auditor) CoordinatorOption {
	return func(c *Coordinator) { c.auditor = a }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator constructs a Coordinator that emits through t and wraps
// session keys with w.
func NewCoordinator(log *slog.Logger, t Transport, w wrap.Wrapper, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if w == nil {
		w = wrap.New()
	}
	c := &Coordinator{
		log:       log,
		transport: t,
		wrapper:   w,
		registry:  NewRegistry(),
		keys:      NewSessionKeyStore(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Registry exposes the client registry (read-mostly callers: presence endpoint, tests).
func (c *Coordinator) Registry() *Registry { return c.registry }

// SessionKeys exposes the session key store.
func (c *Coordinator) SessionKeys() *SessionKeyStore { return c.keys }

// ---- transport adapter ----

// Handle decodes env, runs the matching operation for connID and reports any
// failure as a single error event to connID. Panics are recovered into a
// generic internal error. The returned error is for logging and tests only.
func (c *Coordinator) Handle(ctx context.Context, connID string, env v1.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.ErrorContext(ctx, "signal.handle.panic",
				"conn_id", connID,
				"type", env.Type,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = opErr("signal.Handle", ErrInternal, msgInternal)
			c.SendError(connID, CodeInternal, msgInternal)
		}
	}()

	c.metrics.event(env.Type)

	err = c.dispatch(connID, env)
	if err != nil {
		c.reportError(ctx, connID, env.Type, err)
	}
	return err
}

func (c *Coordinator) dispatch(connID string, env v1.Envelope) error {
	switch env.Type {
	case v1.TypeJoin:
		var p v1.JoinPayload
		if !decodePayload(env.Payload, &p) {
			return opErr("signal.Join", ErrValidation, msgJoinRequired)
		}
		return c.Join(connID, p.Username, p.PublicKey)

	case v1.TypeKeyExchange:
		var p v1.KeyExchangeRequestPayload
		if !decodePayload(env.Payload, &p) {
			return opErr("signal.KeyExchange", ErrValidation, msgBadExchange)
		}
		return c.KeyExchange(connID, p.To)

	case v1.TypePrivateMessage:
		var p v1.PrivateMessageSendPayload
		if !decodePayload(env.Payload, &p) {
			return opErr("signal.PrivateMessage", ErrValidation, msgBadMessage)
		}
		return c.PrivateMessage(connID, p.To, p.Content)

	default:
		return opErr("signal.Handle", ErrUnsupported, msgUnsupported)
	}
}

// decodePayload treats a missing payload as an empty object.
func decodePayload(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *Coordinator) reportError(ctx context.Context, connID, typ string, err error) {
	code := CodeOf(err)
	if code == CodeInternal {
		c.log.ErrorContext(ctx, "signal.event.fail", "conn_id", connID, "type", typ, "err", err)
	} else {
		c.log.InfoContext(ctx, "signal.event.reject", "conn_id", connID, "type", typ, "code", code)
	}
	c.SendError(connID, code, MessageOf(err))
}

// SendError emits an error event to connID only.
func (c *Coordinator) SendError(connID, code, message string) {
	c.metrics.errorSent(code)
	env, err := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: message}, c.now())
	if err != nil {
		c.log.Error("signal.error.encode.fail", "conn_id", connID, "err", err)
		return
	}
	c.transport.Send(connID, env)
}

// ---- operations ----

// Join registers username for connID, announces it to everyone else and
// broadcasts the refreshed presence list.
func (c *Coordinator) Join(connID, username, publicKey string) error {
	const op = "signal.Join"

	if username == "" || publicKey == "" {
		return opErr(op, ErrValidation, msgJoinRequired)
	}
	if len(publicKey) > maxPublicKeyBytes {
		return opErr(op, ErrValidation, msgPublicKeyTooLarge)
	}
	if _, ok := c.registry.FindByConnection(connID); ok {
		return opErr(op, ErrValidation, msgAlreadyJoined)
	}
	if c.registry.Exists(username) {
		return opErr(op, ErrDuplicateUser, msgUsernameTaken)
	}
	if !ValidUsername(username) {
		return opErr(op, ErrInvalidUsername, msgUsernameFormat)
	}

	c.lifecycle.Lock()
	if !c.transport.Attached(connID) {
		c.lifecycle.Unlock()
		return opErr(op, ErrValidation, msgConnectionClosed)
	}
	err := c.registry.Register(username, connID, publicKey)
	c.lifecycle.Unlock()
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			return opErr(op, ErrDuplicateUser, msgUsernameTaken)
		case errors.Is(err, ErrConnectionBound):
			return opErr(op, ErrValidation, msgAlreadyJoined)
		default:
			return fmt.Errorf("%s: register: %w", op, err)
		}
	}

	c.metrics.setOnline(c.registry.Len())
	c.record(audit.Event{Kind: audit.KindPresenceJoin, Username: username, ConnID: connID})
	c.log.Info("signal.join", "username", username, "conn_id", connID, "public_key_len", len(publicKey))

	joined, err := newEnvelope(v1.TypeUserJoined, v1.PresenceEntry{
		Username:  username,
		PublicKey: publicKey,
		IsOnline:  true,
	}, c.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.transport.Broadcast(joined, connID)

	return c.EmitUsers()
}

// KeyExchange delivers the pair's session key to the receiver and then to the
// sender, each wrapped under their own public key. A receiver-side wrap
// failure stops before anything is sent. A sender-side wrap failure leaves the
// receiver's delivery in place and reports a single error.
func (c *Coordinator) KeyExchange(connID, to string) error {
	const op = "signal.KeyExchange"

	sender, ok := c.registry.FindByConnection(connID)
	if !ok {
		return opErr(op, ErrUnknownSender, msgBadExchange)
	}
	if to == "" || to == sender.Username {
		return opErr(op, ErrValidation, msgBadExchange)
	}
	receiver, ok := c.registry.FindByUsername(to)
	if !ok {
		return opErr(op, ErrUnknownReceiver, msgReceiverNotFound)
	}

	key, err := c.keys.GetOrCreate(sender.Username, receiver.Username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.metrics.setSessionKeys(c.keys.Len())

	forReceiver, err := c.wrapper.Wrap(key, receiver.PublicKey)
	if err != nil {
		c.exchangeFailed(sender, receiver.Username, "receiver", err)
		return opErr(op, ErrWrapFailure, msgWrapFailed)
	}
	if err := c.sendKey(receiver.ConnectionID, sender.Username, forReceiver); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	forSender, err := c.wrapper.Wrap(key, sender.PublicKey)
	if err != nil {
		c.exchangeFailed(sender, receiver.Username, "sender", err)
		return opErr(op, ErrWrapFailure, msgWrapFailed)
	}
	if err := c.sendKey(sender.ConnectionID, receiver.Username, forSender); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.metrics.keyExchange(KeyExchangeDelivered)
	c.record(audit.Event{
		Kind:     audit.KindKeyExchangeDelivered,
		Username: sender.Username,
		Peer:     receiver.Username,
		ConnID:   connID,
	})
	c.log.Info("signal.key_exchange", "from", sender.Username, "to", receiver.Username)
	return nil
}

func (c *Coordinator) sendKey(connID, from, wrapped string) error {
	env, err := newEnvelope(v1.TypeKeyExchange, v1.KeyExchangePayload{From: from, SessionKey: wrapped}, c.now())
	if err != nil {
		return err
	}
	c.transport.Send(connID, env)
	return nil
}

// exchangeFailed records a wrap failure. side is the party whose key could not be wrapped.
func (c *Coordinator) exchangeFailed(sender ClientRecord, to, side string, err error) {
	result := KeyExchangeFailed
	if side == "sender" {
		result = KeyExchangePartial
	}
	c.metrics.keyExchange(result)
	c.record(audit.Event{
		Kind:     audit.KindKeyExchangeFailed,
		Username: sender.Username,
		Peer:     to,
		ConnID:   sender.ConnectionID,
		Detail:   side,
	})
	c.log.Warn("signal.key_exchange.wrap.fail", "from", sender.Username, "to", to, "side", side, "err", err)
}

// PrivateMessage relays content from the sender to "to" unchanged.
func (c *Coordinator) PrivateMessage(connID, to, content string) error {
	const op = "signal.PrivateMessage"

	sender, ok := c.registry.FindByConnection(connID)
	if !ok {
		return opErr(op, ErrUnknownSender, msgBadMessage)
	}
	if to == "" || content == "" {
		return opErr(op, ErrValidation, msgBadMessage)
	}
	receiver, ok := c.registry.FindByUsername(to)
	if !ok {
		return opErr(op, ErrUnknownReceiver, msgReceiverNotFound)
	}

	env, err := newEnvelope(v1.TypePrivateMessage, v1.PrivateMessagePayload{
		From:    sender.Username,
		Content: content,
	}, c.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.transport.Send(receiver.ConnectionID, env)

	c.log.Debug("signal.private_message", "from", sender.Username, "to", receiver.Username, "content_len", len(content))
	return nil
}

// Disconnect removes the user bound to connID (if any) and announces the
// departure. Calling it again for the same connID is a no-op.
func (c *Coordinator) Disconnect(connID string) error {
	const op = "signal.Disconnect"

	c.lifecycle.Lock()
	rec, ok := c.registry.RemoveByConnection(connID)
	c.lifecycle.Unlock()
	if !ok {
		return nil
	}

	c.metrics.setOnline(c.registry.Len())
	c.record(audit.Event{Kind: audit.KindPresenceLeave, Username: rec.Username, ConnID: connID})
	c.log.Info("signal.leave", "username", rec.Username, "conn_id", connID)

	left, err := newEnvelope(v1.TypeUserLeft, v1.UserLeftPayload{Username: rec.Username}, c.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.transport.Broadcast(left, "")

	return c.EmitUsers()
}

// Presence returns the current presence snapshot in registration order.
func (c *Coordinator) Presence() v1.UsersPayload {
	recs := c.registry.List()
	out := make(v1.UsersPayload, 0, len(recs))
	for _, r := range recs {
		out = append(out, v1.PresenceEntry{
			Username:  r.Username,
			PublicKey: r.PublicKey,
			IsOnline:  r.IsOnline,
		})
	}
	return out
}

// EmitUsers broadcasts the presence snapshot to every connection.
func (c *Coordinator) EmitUsers() error {
	env, err := newEnvelope(v1.TypeUsers, c.Presence(), c.now())
	if err != nil {
		return fmt.Errorf("signal.EmitUsers: %w", err)
	}
	c.transport.Broadcast(env, "")
	return nil
}

func (c *Coordinator) record(ev audit.Event) {
	if c.auditor == nil {
		return
	}
	ev.At = c.now()
	c.auditor.Record(ev)
}
