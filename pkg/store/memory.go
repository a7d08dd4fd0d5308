package store

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory CredentialStore. It mirrors the SQLite
// implementation's validation and error behavior, for tests and for
// servers run without a database path.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string][]byte
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string][]byte)}
}

// Get returns the stored password hash for username.
func (s *MemoryStore) Get(username string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out, nil
}

// Put inserts a new credential record.
func (s *MemoryStore) Put(username string, passwordHash []byte) error {
	if err := validate(username); err != nil {
		return fmt.Errorf("store: put user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrAlreadyExists
	}
	stored := make([]byte, len(passwordHash))
	copy(stored, passwordHash)
	s.users[username] = stored
	return nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
