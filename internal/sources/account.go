package sources

import (
	"sync"

	"token-detector/internal/domain"
)

// AccountStore holds the selected account address.
type AccountStore struct {
	mu        sync.RWMutex
	address   string
	listeners Listeners[domain.Account]
}

// NewAccountStore creates an account store with an initial selection (may be empty).
func NewAccountStore(address string) *AccountStore {
	return &AccountStore{address: address}
}

// SelectedAddress returns the currently selected account address.
func (s *AccountStore) SelectedAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// SetSelectedAddress changes the selection and notifies subscribers when it differs.
func (s *AccountStore) SetSelectedAddress(address string) {
	s.mu.Lock()
	if s.address == address {
		s.mu.Unlock()
		return
	}
	s.address = address
	s.mu.Unlock()

	s.listeners.Emit(domain.Account{Address: address})
}

// Subscribe registers fn for selection changes. The returned func unsubscribes.
func (s *AccountStore) Subscribe(fn func(domain.Account)) func() {
	return s.listeners.Add(fn)
}
