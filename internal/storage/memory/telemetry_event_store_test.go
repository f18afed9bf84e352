package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"token-detector/internal/domain"
	"token-detector/internal/storage"
)

func TestTelemetryEventStore_InsertAndGetRecent(t *testing.T) {
	store := NewTelemetryEventStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		err := store.Insert(ctx, &domain.TelemetryEvent{
			ID:         id,
			Name:       domain.EventTokenDetected,
			Category:   domain.CategoryWallet,
			Properties: map[string]any{"tokens": []string{"USDT - " + usdt}},
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	_ = store.Insert(ctx, &domain.TelemetryEvent{ID: "other", Name: "Other", CreatedAt: base})

	events, err := store.GetRecentByName(ctx, domain.EventTokenDetected, 2)
	if err != nil {
		t.Fatalf("GetRecentByName failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "e3" || events[1].ID != "e2" {
		t.Errorf("order mismatch: got %s, %s", events[0].ID, events[1].ID)
	}
}

func TestTelemetryEventStore_Duplicate(t *testing.T) {
	store := NewTelemetryEventStore()
	ctx := context.Background()
	e := &domain.TelemetryEvent{ID: "e1", Name: domain.EventTokenDetected}

	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.TelemetryEvent{ID: "e2"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTelemetryEventStore_CopyOnRead(t *testing.T) {
	store := NewTelemetryEventStore()
	ctx := context.Background()
	_ = store.Insert(ctx, &domain.TelemetryEvent{ID: "e1", Name: "n", Properties: map[string]any{"k": "v"}})

	events, _ := store.GetRecentByName(ctx, "n", 0)
	events[0].Properties["k"] = "mutated"

	again, _ := store.GetRecentByName(ctx, "n", 0)
	if again[0].Properties["k"] != "v" {
		t.Errorf("store state was mutated through returned event")
	}
}
