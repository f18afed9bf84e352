package memory

import (
	"context"
	"sort"
	"sync"

	"token-detector/internal/domain"
	"token-detector/internal/storage"
)

// TelemetryEventStore is an in-memory implementation of storage.TelemetryEventStore.
type TelemetryEventStore struct {
	mu     sync.RWMutex
	events []*domain.TelemetryEvent
	ids    map[string]struct{}
}

// NewTelemetryEventStore creates a new in-memory telemetry event store.
func NewTelemetryEventStore() *TelemetryEventStore {
	return &TelemetryEventStore{
		ids: make(map[string]struct{}),
	}
}

// Insert adds an event. Returns ErrDuplicateKey if the ID already exists.
func (s *TelemetryEventStore) Insert(_ context.Context, e *domain.TelemetryEvent) error {
	if e == nil || e.ID == "" || e.Name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := copyEvent(e)
	s.events = append(s.events, eventCopy)
	s.ids[e.ID] = struct{}{}
	return nil
}

// GetRecentByName returns up to limit events with the given name, newest first.
func (s *TelemetryEventStore) GetRecentByName(_ context.Context, name string, limit int) ([]*domain.TelemetryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TelemetryEvent
	for _, e := range s.events {
		if e.Name == name {
			result = append(result, copyEvent(e))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyEvent(e *domain.TelemetryEvent) *domain.TelemetryEvent {
	c := *e
	if e.Properties != nil {
		c.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

var _ storage.TelemetryEventStore = (*TelemetryEventStore)(nil)
