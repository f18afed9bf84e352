package telemetry

import (
	"context"

	"github.com/rs/zerolog"

	"token-detector/internal/logging"
	"token-detector/internal/storage"
)

// StoreSink persists events to a storage.TelemetryEventStore such as ClickHouse.
type StoreSink struct {
	store  storage.TelemetryEventStore
	logger zerolog.Logger
}

// NewStoreSink creates a sink that inserts events into store.
func NewStoreSink(store storage.TelemetryEventStore, logger *zerolog.Logger) *StoreSink {
	return &StoreSink{
		store:  store,
		logger: logging.OrNop(logger).With().Str("component", "telemetry_store").Logger(),
	}
}

// Record implements Sink. Insert errors are logged.
func (s *StoreSink) Record(ctx context.Context, e Event) {
	ev := e
	if err := s.store.Insert(ctx, &ev); err != nil {
		s.logger.Warn().Err(err).Str("event_id", e.ID).Str("event", e.Name).Msg("persist telemetry event")
	}
}
