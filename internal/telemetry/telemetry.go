// Package telemetry delivers analytics events to logs, storage and message buses.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"token-detector/internal/domain"
)

// Event is one analytics record.
type Event = domain.TelemetryEvent

// Sink receives events. Record never fails from the caller's point of view;
// delivery errors are handled by the sink.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(name, category string, properties map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Category:   category,
		Properties: properties,
		CreatedAt:  time.Now().UTC(),
	}
}

// Multi fans an event out to every sink in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, e)
		}
	}
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, e Event) { f(ctx, e) }
