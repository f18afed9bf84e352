package sources

import (
	"sync"

	"token-detector/internal/domain"
)

// KeyringStore holds the session lock state.
type KeyringStore struct {
	mu         sync.RWMutex
	isUnlocked bool
	listeners  Listeners[domain.SessionState]
}

// NewKeyringStore creates a keyring store, locked unless unlocked is true.
func NewKeyringStore(unlocked bool) *KeyringStore {
	return &KeyringStore{isUnlocked: unlocked}
}

// IsUnlocked reports whether the session is unlocked.
func (s *KeyringStore) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isUnlocked
}

// Unlock marks the session unlocked.
func (s *KeyringStore) Unlock() { s.set(true) }

// Lock marks the session locked.
func (s *KeyringStore) Lock() { s.set(false) }

func (s *KeyringStore) set(unlocked bool) {
	s.mu.Lock()
	if s.isUnlocked == unlocked {
		s.mu.Unlock()
		return
	}
	s.isUnlocked = unlocked
	s.mu.Unlock()

	s.listeners.Emit(domain.SessionState{IsUnlocked: unlocked})
}

// Subscribe registers fn for lock state changes. The returned func unsubscribes.
func (s *KeyringStore) Subscribe(fn func(domain.SessionState)) func() {
	return s.listeners.Add(fn)
}
