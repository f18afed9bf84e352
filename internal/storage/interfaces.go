package storage

import (
	"context"

	"token-detector/internal/domain"
)

// TokenRepository persists the tracked, detected and ignored tokens of each account+chain.
// Addresses are unique per account+chain under case-insensitive comparison.
type TokenRepository interface {
	// GetState returns the token state for account+chain in insertion order.
	// Unknown account+chain pairs yield an empty state.
	GetState(ctx context.Context, account, chainID string) (domain.TokenState, error)

	// AddTokens marks tokens as tracked, promoting detected or ignored entries.
	AddTokens(ctx context.Context, account, chainID string, tokens []domain.Token) error

	// AddDetectedTokens inserts tokens not yet known (tracked, detected or ignored)
	// for account+chain. Known addresses are skipped. Returns the number inserted.
	AddDetectedTokens(ctx context.Context, account, chainID string, tokens []domain.Token) (int, error)

	// IgnoreTokens hides addresses, removing them from tracked and detected.
	IgnoreTokens(ctx context.Context, account, chainID string, addresses []string) error
}

// TelemetryEventStore provides access to telemetry_events storage.
type TelemetryEventStore interface {
	// Insert adds a new event. Returns ErrInvalidInput if the event has no ID or name.
	Insert(ctx context.Context, e *domain.TelemetryEvent) error

	// GetRecentByName retrieves the newest events with the given name, newest first.
	GetRecentByName(ctx context.Context, name string, limit int) ([]*domain.TelemetryEvent, error)
}
