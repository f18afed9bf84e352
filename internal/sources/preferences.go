package sources

import (
	"sync"

	"token-detector/internal/domain"
)

// PreferencesStore holds user preferences relevant to detection.
type PreferencesStore struct {
	mu        sync.RWMutex
	prefs     domain.Preferences
	listeners Listeners[domain.Preferences]
}

// NewPreferencesStore creates a preferences store.
func NewPreferencesStore(prefs domain.Preferences) *PreferencesStore {
	return &PreferencesStore{prefs: prefs}
}

// UseTokenDetection reports whether general token detection is enabled.
func (s *PreferencesStore) UseTokenDetection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.UseTokenDetection
}

// SetUseTokenDetection updates the preference and notifies subscribers when it differs.
func (s *PreferencesStore) SetUseTokenDetection(enabled bool) {
	s.mu.Lock()
	if s.prefs.UseTokenDetection == enabled {
		s.mu.Unlock()
		return
	}
	s.prefs.UseTokenDetection = enabled
	prefs := s.prefs
	s.mu.Unlock()

	s.listeners.Emit(prefs)
}

// Subscribe registers fn for preference changes. The returned func unsubscribes.
func (s *PreferencesStore) Subscribe(fn func(domain.Preferences)) func() {
	return s.listeners.Add(fn)
}
