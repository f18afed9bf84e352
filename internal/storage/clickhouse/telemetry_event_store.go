package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"token-detector/internal/domain"
	"token-detector/internal/storage"
)

// TelemetryEventStore implements storage.TelemetryEventStore using ClickHouse.
type TelemetryEventStore struct {
	conn *Conn
}

// NewTelemetryEventStore creates a new ClickHouse telemetry event store.
func NewTelemetryEventStore(conn *Conn) *TelemetryEventStore {
	return &TelemetryEventStore{conn: conn}
}

// Insert adds an event. ClickHouse does not enforce ID uniqueness.
func (s *TelemetryEventStore) Insert(ctx context.Context, e *domain.TelemetryEvent) (err error) {
	if e == nil || e.Name == "" {
		return storage.ErrInvalidInput
	}
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("%w: event id: %v", storage.ErrInvalidInput, err)
	}
	defer func(start time.Time) { observe("insert_event", start, err) }(time.Now())

	props, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	query := `
		INSERT INTO telemetry_events (event_id, name, category, properties, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if err := s.conn.Exec(ctx, query, id, e.Name, e.Category, string(props), e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}

// GetRecentByName retrieves up to limit events with the given name, newest first.
func (s *TelemetryEventStore) GetRecentByName(ctx context.Context, name string, limit int) (result []*domain.TelemetryEvent, err error) {
	if limit <= 0 {
		limit = 100
	}
	defer func(start time.Time) { observe("recent_events", start, err) }(time.Now())

	query := `
		SELECT event_id, name, category, properties, created_at
		FROM telemetry_events
		WHERE name = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, name, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query telemetry events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    uuid.UUID
			e     domain.TelemetryEvent
			props string
		)
		if err := rows.Scan(&id, &e.Name, &e.Category, &props, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		e.ID = id.String()
		if props != "" && props != "null" {
			if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
				return nil, fmt.Errorf("decode properties of %s: %w", e.ID, err)
			}
		}
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry events: %w", err)
	}

	return result, nil
}

var _ storage.TelemetryEventStore = (*TelemetryEventStore)(nil)
