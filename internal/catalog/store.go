// Package catalog holds the reference token lists that detection scans against.
package catalog

import (
	"sync"

	"token-detector/internal/domain"
)

// Store keeps the current token list of each chain.
type Store struct {
	mu    sync.RWMutex
	lists map[string]domain.TokenList
}

// NewStore creates an empty token list store.
func NewStore() *Store {
	return &Store{lists: make(map[string]domain.TokenList)}
}

// TokenList returns the list for chainID, or an empty list when none was loaded.
// The returned map must not be modified.
func (s *Store) TokenList(chainID string) domain.TokenList {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if list, ok := s.lists[domain.NormalizeChainID(chainID)]; ok {
		return list
	}
	return domain.TokenList{}
}

// SetTokenList replaces the list of chainID with a copy of list.
func (s *Store) SetTokenList(chainID string, list domain.TokenList) {
	listCopy := make(domain.TokenList, len(list))
	for addr, entry := range list {
		listCopy[addr] = entry
	}

	s.mu.Lock()
	s.lists[domain.NormalizeChainID(chainID)] = listCopy
	s.mu.Unlock()
}

// Chains returns the chains with a loaded list.
func (s *Store) Chains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chains := make([]string, 0, len(s.lists))
	for id := range s.lists {
		chains = append(chains, id)
	}
	return chains
}
