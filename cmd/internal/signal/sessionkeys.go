package signal

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

// SessionKeySize is the length of a pairwise symmetric key in bytes.
const SessionKeySize = 16

type pairKey struct{ lo, hi string }

func canonicalPair(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// SessionKeyStore caches one symmetric key per unordered username pair for
// the life of the process. Entries are never rotated or deleted, so a pair
// that reconnects gets the same key back.
type SessionKeyStore struct {
	mu   sync.Mutex
	keys map[pairKey][]byte
	rand io.Reader
}

// NewSessionKeyStore constructs a store backed by crypto/rand.
func NewSessionKeyStore() *SessionKeyStore {
	return NewSessionKeyStoreWithRand(rand.Reader)
}

// NewSessionKeyStoreWithRand uses r as the entropy source. A nil r means crypto/rand.
func NewSessionKeyStoreWithRand(r io.Reader) *SessionKeyStore {
	if r == nil {
		r = rand.Reader
	}
	return &SessionKeyStore{
		keys: make(map[pairKey][]byte),
		rand: r,
	}
}

// GetOrCreate returns the key for {a, b}, generating it on first use.
// The returned slice is a copy.
func (s *SessionKeyStore) GetOrCreate(a, b string) ([]byte, error) {
	if a == b {
		return nil, ErrSamePeer
	}
	pk := canonicalPair(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[pk]
	if !ok {
		k = make([]byte, SessionKeySize)
		if _, err := io.ReadFull(s.rand, k); err != nil {
			return nil, fmt.Errorf("session key entropy: %w", err)
		}
		s.keys[pk] = k
	}

	out := make([]byte, len(k))
	copy(out, k)
	return out, nil
}

// Len returns the number of cached pairs.
func (s *SessionKeyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
