package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-detector/internal/domain"
	"token-detector/internal/storage/memory"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(domain.EventTokenDetected, domain.CategoryWallet, map[string]any{"chain_id": "0x1"})

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.EventTokenDetected, e.Name)
	assert.Equal(t, domain.CategoryWallet, e.Category)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestMulti_FansOutInOrder(t *testing.T) {
	var order []string
	sink := Multi{
		SinkFunc(func(context.Context, Event) { order = append(order, "a") }),
		nil,
		SinkFunc(func(context.Context, Event) { order = append(order, "b") }),
	}

	sink.Record(context.Background(), NewEvent("x", "y", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	NewLogSink(&logger).Record(context.Background(), NewEvent(domain.EventTokenDetected, domain.CategoryWallet, map[string]any{
		"tokens": []string{"USDT - 0xAAA"},
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, domain.EventTokenDetected, line["event"])
	assert.Equal(t, "telemetry", line["component"])
	assert.Equal(t, []any{"USDT - 0xAAA"}, line["properties"].(map[string]any)["tokens"])
}

func TestStoreSink(t *testing.T) {
	store := memory.NewTelemetryEventStore()
	sink := NewStoreSink(store, nil)
	ctx := context.Background()

	e := NewEvent(domain.EventTokenDetected, domain.CategoryWallet, nil)
	sink.Record(ctx, e)
	// Duplicate insert is logged, not surfaced.
	sink.Record(ctx, e)

	events, err := store.GetRecentByName(ctx, domain.EventTokenDetected, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "", nil)

	e := NewEvent(domain.EventTokenDetected, domain.CategoryWallet, map[string]any{"asset_type": domain.AssetTypeToken})
	sink.Record(context.Background(), e)

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, DefaultNATSSubject, pub.subjects[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.Name, decoded.Name)
	assert.Equal(t, domain.AssetTypeToken, decoded.Properties["asset_type"])
}

func TestNATSSink_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	sink := NewNATSSink(pub, "custom.subject", nil)

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), NewEvent("x", "y", nil))
	})
	assert.Empty(t, pub.payloads)
}
