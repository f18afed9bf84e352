package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"token-detector/internal/logging"
)

// DefaultNATSSubject is the subject events are published on.
const DefaultNATSSubject = "token-detector.events"

// Publisher publishes raw payloads. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON.
type NATSSink struct {
	pub     Publisher
	subject string
	logger  zerolog.Logger
}

// NewNATSSink creates a sink publishing on subject (DefaultNATSSubject when empty).
func NewNATSSink(pub Publisher, subject string, logger *zerolog.Logger) *NATSSink {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSSink{
		pub:     pub,
		subject: subject,
		logger:  logging.OrNop(logger).With().Str("component", "telemetry_nats").Logger(),
	}
}

// Record implements Sink. Publish errors are logged.
func (s *NATSSink) Record(_ context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", e.ID).Msg("marshal telemetry event")
		return
	}
	if err := s.pub.Publish(s.subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_id", e.ID).Str("subject", s.subject).Msg("publish telemetry event")
	}
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// ConnectNATS opens a NATS connection with reconnect handling logged through logger.
func ConnectNATS(cfg NATSConfig, logger *zerolog.Logger) (*nats.Conn, error) {
	log := logging.OrNop(logger).With().Str("component", "nats").Logger()

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

var _ Publisher = (*nats.Conn)(nil)
