package signal

import (
	"sort"
	"sync"
)

// ClientRecord is one joined user.
type ClientRecord struct {
	Username     string
	ConnectionID string
	PublicKey    string
	IsOnline     bool

	seq uint64
}

// Registry is the set of joined users, keyed by username with a reverse
// index on connection id. Safe for concurrent use.
//
// Register does not validate username format; callers do.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]ClientRecord
	byConn map[string]string
	seq    uint64
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]ClientRecord),
		byConn: make(map[string]string),
	}
}

// Register adds username bound to connID.
// Returns ErrAlreadyExists if the name is taken, ErrConnectionBound if connID
// already owns a name.
func (r *Registry) Register(username, connID, publicKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[username]; ok {
		return ErrAlreadyExists
	}
	if _, ok := r.byConn[connID]; ok {
		return ErrConnectionBound
	}

	r.seq++
	r.byName[username] = ClientRecord{
		Username:     username,
		ConnectionID: connID,
		PublicKey:    publicKey,
		IsOnline:     true,
		seq:          r.seq,
	}
	r.byConn[connID] = username
	return nil
}

// Exists reports whether username is registered.
func (r *Registry) Exists(username string) bool {
	r.mu.RLock()
	_, ok := r.byName[username]
	r.mu.RUnlock()
	return ok
}

// FindByConnection resolves the user bound to connID.
func (r *Registry) FindByConnection(connID string) (ClientRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byConn[connID]
	if !ok {
		return ClientRecord{}, false
	}
	rec, ok := r.byName[name]
	return rec, ok
}

// FindByUsername resolves username.
func (r *Registry) FindByUsername(username string) (ClientRecord, bool) {
	r.mu.RLock()
	rec, ok := r.byName[username]
	r.mu.RUnlock()
	return rec, ok
}

// Remove deletes username and returns the removed record.
func (r *Registry) Remove(username string) (ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[username]
	if !ok {
		return ClientRecord{}, false
	}
	r.removeLocked(rec)
	return rec, true
}

// RemoveByConnection atomically resolves and removes the user bound to connID.
// A concurrent rejoin under the same name on another connection is unaffected.
func (r *Registry) RemoveByConnection(connID string) (ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.byConn[connID]
	if !ok {
		return ClientRecord{}, false
	}
	rec, ok := r.byName[name]
	if !ok || rec.ConnectionID != connID {
		delete(r.byConn, connID)
		return ClientRecord{}, false
	}
	r.removeLocked(rec)
	return rec, true
}

func (r *Registry) removeLocked(rec ClientRecord) {
	delete(r.byName, rec.Username)
	if r.byConn[rec.ConnectionID] == rec.Username {
		delete(r.byConn, rec.ConnectionID)
	}
}

// List returns a snapshot in registration order.
func (r *Registry) List() []ClientRecord {
	r.mu.RLock()
	out := make([]ClientRecord, 0, len(r.byName))
	for _, rec := range r.byName {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of joined users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
