package telemetry

import (
	"context"

	"github.com/rs/zerolog"

	"token-detector/internal/logging"
)

// LogSink writes events to a zerolog logger at info level.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger).With().Str("component", "telemetry").Logger()}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, e Event) {
	s.logger.Info().
		Str("event_id", e.ID).
		Str("event", e.Name).
		Str("category", e.Category).
		Interface("properties", e.Properties).
		Msg("telemetry event")
}
