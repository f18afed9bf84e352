package sources

import (
	"sync"

	"token-detector/internal/domain"
)

// NetworkStore holds the active chain id.
// Change notifications carry no payload; subscribers re-read ChainID.
type NetworkStore struct {
	mu        sync.RWMutex
	chainID   string
	listeners Listeners[struct{}]
}

// NewNetworkStore creates a network store on the given chain.
func NewNetworkStore(chainID string) *NetworkStore {
	return &NetworkStore{chainID: domain.NormalizeChainID(chainID)}
}

// ChainID returns the active chain id.
func (s *NetworkStore) ChainID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

// SetChainID switches the active chain and notifies subscribers when it differs.
func (s *NetworkStore) SetChainID(chainID string) {
	chainID = domain.NormalizeChainID(chainID)

	s.mu.Lock()
	if s.chainID == chainID {
		s.mu.Unlock()
		return
	}
	s.chainID = chainID
	s.mu.Unlock()

	s.listeners.Emit(struct{}{})
}

// Subscribe registers fn for network changes. The returned func unsubscribes.
func (s *NetworkStore) Subscribe(fn func()) func() {
	return s.listeners.Add(func(struct{}) { fn() })
}
