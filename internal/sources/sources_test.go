package sources

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-detector/internal/domain"
)

func TestAccountStore_NotifiesOnChange(t *testing.T) {
	store := NewAccountStore("0xabc")

	var got []string
	unsubscribe := store.Subscribe(func(a domain.Account) {
		got = append(got, a.Address)
	})

	store.SetSelectedAddress("0xabc") // same, no event
	store.SetSelectedAddress("0xdef")
	assert.Equal(t, "0xdef", store.SelectedAddress())

	unsubscribe()
	unsubscribe() // idempotent
	store.SetSelectedAddress("0x123")

	assert.Equal(t, []string{"0xdef"}, got)
}

func TestNetworkStore_NormalizesAndNotifies(t *testing.T) {
	store := NewNetworkStore("0x01")
	assert.Equal(t, "0x1", store.ChainID())

	var events int
	store.Subscribe(func() { events++ })

	store.SetChainID("0x1")
	assert.Equal(t, 0, events)

	store.SetChainID("0x89")
	assert.Equal(t, 1, events)
	assert.Equal(t, "0x89", store.ChainID())
}

func TestPreferencesStore(t *testing.T) {
	store := NewPreferencesStore(domain.Preferences{UseTokenDetection: true})
	assert.True(t, store.UseTokenDetection())

	var got []bool
	store.Subscribe(func(p domain.Preferences) { got = append(got, p.UseTokenDetection) })

	store.SetUseTokenDetection(true)
	store.SetUseTokenDetection(false)
	assert.False(t, store.UseTokenDetection())
	assert.Equal(t, []bool{false}, got)
}

func TestKeyringStore(t *testing.T) {
	store := NewKeyringStore(false)

	var got []bool
	store.Subscribe(func(s domain.SessionState) { got = append(got, s.IsUnlocked) })

	store.Lock()
	store.Unlock()
	store.Unlock()
	store.Lock()

	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, store.IsUnlocked())
}

func TestListeners_SubscriptionOrder(t *testing.T) {
	var l Listeners[int]
	var order []string

	l.Add(func(int) { order = append(order, "first") })
	unsubscribe := l.Add(func(int) { order = append(order, "second") })
	l.Add(func(int) { order = append(order, "third") })

	l.Emit(1)
	unsubscribe()
	l.Emit(2)

	assert.Equal(t, []string{"first", "second", "third", "first", "third"}, order)
}

type fakeChainReader struct {
	ids   []string
	calls atomic.Int32
}

func (f *fakeChainReader) ChainID(context.Context) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if n >= len(f.ids) {
		n = len(f.ids) - 1
	}
	if f.ids[n] == "" {
		return "", errors.New("node unavailable")
	}
	return f.ids[n], nil
}

func TestChainWatcher_Poll(t *testing.T) {
	network := NewNetworkStore("0x1")
	reader := &fakeChainReader{ids: []string{"0x89", "", "0x89"}}

	var events atomic.Int32
	network.Subscribe(func() { events.Add(1) })

	watcher := NewChainWatcher(ChainWatcherOptions{Reader: reader, Network: network})
	ctx := context.Background()

	require.NoError(t, watcher.Poll(ctx))
	assert.Equal(t, "0x89", network.ChainID())

	require.Error(t, watcher.Poll(ctx))
	assert.Equal(t, "0x89", network.ChainID(), "failed poll keeps the last chain")

	require.NoError(t, watcher.Poll(ctx))
	assert.Equal(t, int32(1), events.Load())
}

func TestChainWatcher_RunStopsOnCancel(t *testing.T) {
	network := NewNetworkStore("0x1")
	reader := &fakeChainReader{ids: []string{"0xa"}}
	watcher := NewChainWatcher(ChainWatcherOptions{Reader: reader, Network: network, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	require.Eventually(t, func() bool { return network.ChainID() == "0xa" }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
