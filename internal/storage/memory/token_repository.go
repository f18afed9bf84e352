package memory

import (
	"context"
	"sync"

	"token-detector/internal/domain"
	"token-detector/internal/storage"
)

type tokenStatus int

const (
	statusTracked tokenStatus = iota
	statusDetected
	statusIgnored
)

type tokenEntry struct {
	token  domain.Token
	status tokenStatus
}

// scopedTokens holds the entries of one account+chain in insertion order.
type scopedTokens struct {
	entries []*tokenEntry
	byKey   map[string]*tokenEntry // keyed by domain.AddressKey
}

// TokenRepository is an in-memory implementation of storage.TokenRepository.
type TokenRepository struct {
	mu     sync.RWMutex
	scopes map[string]*scopedTokens // keyed by account|chain
}

// NewTokenRepository creates a new in-memory token repository.
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		scopes: make(map[string]*scopedTokens),
	}
}

func scopeID(account, chainID string) string {
	a, c := storage.ScopeKey(account, chainID)
	return a + "|" + c
}

// scope returns the entries for account+chain, creating them when create is set.
// Caller must hold the lock.
func (r *TokenRepository) scope(account, chainID string, create bool) *scopedTokens {
	id := scopeID(account, chainID)
	s, ok := r.scopes[id]
	if !ok && create {
		s = &scopedTokens{byKey: make(map[string]*tokenEntry)}
		r.scopes[id] = s
	}
	return s
}

func (s *scopedTokens) put(t domain.Token, status tokenStatus) *tokenEntry {
	e := &tokenEntry{token: t, status: status}
	s.entries = append(s.entries, e)
	s.byKey[domain.AddressKey(t.Address)] = e
	return e
}

// GetState returns the token state for account+chain.
func (r *TokenRepository) GetState(_ context.Context, account, chainID string) (domain.TokenState, error) {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return domain.TokenState{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var state domain.TokenState
	s := r.scope(account, chainID, false)
	if s == nil {
		return state, nil
	}
	for _, e := range s.entries {
		switch e.status {
		case statusTracked:
			state.Tokens = append(state.Tokens, e.token)
		case statusDetected:
			state.DetectedTokens = append(state.DetectedTokens, e.token)
		case statusIgnored:
			state.IgnoredTokens = append(state.IgnoredTokens, e.token.Address)
		}
	}
	return state, nil
}

// AddTokens marks tokens as tracked.
func (r *TokenRepository) AddTokens(_ context.Context, account, chainID string, tokens []domain.Token) error {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return err
	}
	if err := storage.ValidateTokens(tokens); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.scope(account, chainID, true)
	for _, t := range tokens {
		if e, ok := s.byKey[domain.AddressKey(t.Address)]; ok {
			e.token = t
			e.status = statusTracked
			continue
		}
		s.put(t, statusTracked)
	}
	return nil
}

// AddDetectedTokens inserts tokens unknown to account+chain and returns how many were added.
func (r *TokenRepository) AddDetectedTokens(_ context.Context, account, chainID string, tokens []domain.Token) (int, error) {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return 0, err
	}
	if err := storage.ValidateTokens(tokens); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.scope(account, chainID, true)
	inserted := 0
	for _, t := range tokens {
		if _, ok := s.byKey[domain.AddressKey(t.Address)]; ok {
			continue
		}
		s.put(t, statusDetected)
		inserted++
	}
	return inserted, nil
}

// IgnoreTokens hides addresses from account+chain.
func (r *TokenRepository) IgnoreTokens(_ context.Context, account, chainID string, addresses []string) error {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.scope(account, chainID, true)
	for _, addr := range addresses {
		if domain.AddressKey(addr) == "" {
			return storage.ErrInvalidInput
		}
		if e, ok := s.byKey[domain.AddressKey(addr)]; ok {
			e.status = statusIgnored
			continue
		}
		s.put(domain.Token{Address: addr}, statusIgnored)
	}
	return nil
}

var _ storage.TokenRepository = (*TokenRepository)(nil)
