package signal

import v1 "sigrelay/shared/contracts/signal/v1"

// Transport delivers outbound envelopes. Implementations must not block the
// caller and must preserve per-connection order.
type Transport interface {
	// Send enqueues env for connID and reports whether it was accepted.
	Send(connID string, env v1.Envelope) bool
	// Broadcast enqueues env for every attached connection except exceptConnID
	// (empty means none excluded).
	Broadcast(env v1.Envelope, exceptConnID string)
	// Attached reports whether connID is still live and able to receive.
	Attached(connID string) bool
}
