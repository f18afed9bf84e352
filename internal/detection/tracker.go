package detection

import (
	"sync/atomic"

	"token-detector/internal/domain"
)

// Exclusions is an immutable snapshot of the addresses a pass must not scan.
// Keys are lower-cased.
type Exclusions struct {
	owned    map[string]struct{}
	hidden   map[string]struct{}
	detected map[string]struct{}
}

// NewExclusions builds the three exclusion sets from a token store state.
func NewExclusions(state domain.TokenState) *Exclusions {
	e := &Exclusions{
		owned:    make(map[string]struct{}, len(state.Tokens)),
		hidden:   make(map[string]struct{}, len(state.IgnoredTokens)),
		detected: make(map[string]struct{}, len(state.DetectedTokens)),
	}
	for _, t := range state.Tokens {
		e.owned[domain.AddressKey(t.Address)] = struct{}{}
	}
	for _, addr := range state.IgnoredTokens {
		e.hidden[domain.AddressKey(addr)] = struct{}{}
	}
	for _, t := range state.DetectedTokens {
		e.detected[domain.AddressKey(t.Address)] = struct{}{}
	}
	return e
}

// Contains reports whether address is in any of the sets, ignoring case.
func (e *Exclusions) Contains(address string) bool {
	if e == nil {
		return false
	}
	key := domain.AddressKey(address)
	if _, ok := e.owned[key]; ok {
		return true
	}
	if _, ok := e.hidden[key]; ok {
		return true
	}
	_, ok := e.detected[key]
	return ok
}

// Sizes returns the number of owned, hidden and detected addresses.
func (e *Exclusions) Sizes() (owned, hidden, detected int) {
	if e == nil {
		return 0, 0, 0
	}
	return len(e.owned), len(e.hidden), len(e.detected)
}

// Tracker mirrors the token store into exclusion sets. All three sets are
// replaced together so a reader never sees a mix of two states.
type Tracker struct {
	current atomic.Pointer[Exclusions]
}

// NewTracker creates a tracker with empty sets.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.current.Store(NewExclusions(domain.TokenState{}))
	return t
}

// Update replaces the sets from a token store snapshot.
func (t *Tracker) Update(state domain.TokenState) {
	t.current.Store(NewExclusions(state))
}

// Snapshot returns the current sets.
func (t *Tracker) Snapshot() *Exclusions {
	return t.current.Load()
}
