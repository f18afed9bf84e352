package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-detector/internal/domain"
	"token-detector/internal/storage"
	"token-detector/internal/storage/clickhouse"
)

func TestTelemetryEventStore_InsertAndGetRecent(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := clickhouse.NewTelemetryEventStore(conn)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &domain.TelemetryEvent{
		ID:       uuid.NewString(),
		Name:     domain.EventTokenDetected,
		Category: domain.CategoryWallet,
		Properties: map[string]any{
			"tokens":         []any{"USDT - 0xdAC17F958D2ee523a2206206994597C13D831ec7"},
			"token_standard": domain.TokenStandardERC20,
			"asset_type":     domain.AssetTypeToken,
		},
		CreatedAt: base,
	}
	newer := &domain.TelemetryEvent{
		ID:        uuid.NewString(),
		Name:      domain.EventTokenDetected,
		Category:  domain.CategoryWallet,
		CreatedAt: base.Add(time.Minute),
	}

	require.NoError(t, store.Insert(ctx, older))
	require.NoError(t, store.Insert(ctx, newer))

	events, err := store.GetRecentByName(ctx, domain.EventTokenDetected, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, newer.ID, events[0].ID)
	assert.Equal(t, older.ID, events[1].ID)
	assert.Equal(t, domain.CategoryWallet, events[1].Category)
	assert.Equal(t, domain.TokenStandardERC20, events[1].Properties["token_standard"])
	assert.Equal(t, older.Properties["tokens"], events[1].Properties["tokens"])
	assert.True(t, base.Equal(events[1].CreatedAt))
}

func TestTelemetryEventStore_InvalidInput(t *testing.T) {
	conn := setupTestDB(t)

	store := clickhouse.NewTelemetryEventStore(conn)

	err := store.Insert(context.Background(), &domain.TelemetryEvent{ID: "not-a-uuid", Name: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Insert(context.Background(), &domain.TelemetryEvent{ID: uuid.NewString()})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
