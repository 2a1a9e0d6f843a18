// Package signal implements the sigrelay signaling core: the client registry,
// the pairwise session-key cache, the relay coordinator that drives join,
// key exchange, private message and disconnect, and the websocket transport
// that feeds it.
//
// Invariants:
//   - A username is registered at most once; a connection owns at most one username.
//   - Session keys are keyed on the sorted username pair and never rotate.
//   - Chat content and key material are never logged or inspected.
//   - No lock is held across a wrap call or an outbound send.
package signal
