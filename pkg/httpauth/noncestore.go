package httpauth

import "sync"

// NonceStore is the session-scoped key/value persistence keeping the digest
// nonce alive across the multi-round-trip handshake. Implementations can be
// backed by an in-memory session, a distributed cache or signed cookies; the
// authenticator only needs get/set by key.
type NonceStore interface {
	Get(key string) string
	Set(key, value string)
}

// MemoryNonceStore is a process-local NonceStore, safe for concurrent use.
type MemoryNonceStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryNonceStore creates an empty in-memory store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{values: make(map[string]string)}
}

// Get returns the stored value, or "" when unset.
func (s *MemoryNonceStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set stores a value.
func (s *MemoryNonceStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
