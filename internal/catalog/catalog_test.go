package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-detector/internal/domain"
	"token-detector/internal/sources"
)

const (
	usdt = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	dai  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
)

// tokenAPI serves canned token lists per decimal chain id and counts requests.
type tokenAPI struct {
	mu       sync.Mutex
	requests []string
	status   int
	lists    map[string][]apiToken
}

func (a *tokenAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.URL.RequestURI())
	status := a.status
	a.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("unavailable"))
		return
	}

	chain := r.URL.Path[len("/tokens/"):]
	_ = json.NewEncoder(w).Encode(a.lists[chain])
}

func (a *tokenAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func newTokenAPI() *tokenAPI {
	return &tokenAPI{lists: map[string][]apiToken{
		"1": {
			{Address: usdt, Symbol: "USDT", Decimals: 6, Occurrences: 10},
			{Address: dai, Symbol: "DAI", Decimals: 18, Occurrences: 2},
		},
		"137": {
			{Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Symbol: "USDT", Decimals: 6, Occurrences: 5},
		},
	}}
}

func TestStore_SetAndGet(t *testing.T) {
	store := NewStore()
	assert.Empty(t, store.TokenList("0x1"))

	list := domain.TokenList{usdt: {Address: usdt, Symbol: "USDT", Decimals: 6}}
	store.SetTokenList("0x01", list)

	// The store keeps its own copy.
	delete(list, usdt)

	got := store.TokenList("0x1")
	require.Len(t, got, 1)
	assert.Equal(t, "USDT", got[usdt].Symbol)
	assert.Equal(t, []string{"0x1"}, store.Chains())
}

func TestStaticMainnetTokenList(t *testing.T) {
	list := StaticMainnetTokenList()
	require.NotEmpty(t, list)

	for addr, entry := range list {
		assert.Equal(t, addr, entry.Address)
		assert.Len(t, addr, 42)
		assert.NotEmpty(t, entry.Symbol)
	}

	// Callers get a copy.
	delete(list, usdt)
	assert.Contains(t, StaticMainnetTokenList(), usdt)
}

func TestFetcher_FetchFiltersOccurrences(t *testing.T) {
	api := newTokenAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	f := NewFetcher(FetcherOptions{BaseURL: srv.URL, MinOccurrences: 3})

	list, err := f.Fetch(context.Background(), "0x1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "USDT", list[usdt].Symbol)
	assert.Equal(t, []string{"/tokens/1?occurrenceFloor=3"}, api.requests)
}

func TestFetcher_FetchDropsInvalidAddresses(t *testing.T) {
	api := newTokenAPI()
	api.lists["1"] = append(api.lists["1"],
		apiToken{Address: "0xZZ", Symbol: "BAD", Decimals: 18, Occurrences: 10},
		apiToken{Address: "", Symbol: "EMPTY", Decimals: 18, Occurrences: 10},
	)
	srv := httptest.NewServer(api)
	defer srv.Close()

	f := NewFetcher(FetcherOptions{BaseURL: srv.URL, MinOccurrences: 3})

	list, err := f.Fetch(context.Background(), "0x1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list, usdt)
	assert.NotContains(t, list, "0xZZ")
}

func TestFetcher_FetchErrorStatus(t *testing.T) {
	api := newTokenAPI()
	api.status = http.StatusServiceUnavailable
	srv := httptest.NewServer(api)
	defer srv.Close()

	f := NewFetcher(FetcherOptions{BaseURL: srv.URL})

	_, err := f.Fetch(context.Background(), "0x1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFetcher_RefreshUsesFreshCache(t *testing.T) {
	api := newTokenAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	cache := NewMemoryCache()
	f := NewFetcher(FetcherOptions{BaseURL: srv.URL, Cache: cache, CacheThreshold: time.Hour})

	require.NoError(t, f.Refresh(ctx, "0x1"))
	require.NoError(t, f.Refresh(ctx, "0x1"))
	assert.Equal(t, 1, api.count(), "second refresh should be served from cache")
	assert.Len(t, f.Store().TokenList("0x1"), 1)

	// Expire the cache entry.
	f.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, f.Refresh(ctx, "0x1"))
	assert.Equal(t, 2, api.count())
}

func TestFetcher_RefreshKeepsStaleListOnFailure(t *testing.T) {
	api := newTokenAPI()
	api.status = http.StatusInternalServerError
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	cache := NewMemoryCache()
	stale := domain.TokenList{usdt: {Address: usdt, Symbol: "USDT", Decimals: 6}}
	require.NoError(t, cache.Put(ctx, "0x1", CachedList{FetchedAt: time.Now().Add(-48 * time.Hour), Data: stale}))

	f := NewFetcher(FetcherOptions{BaseURL: srv.URL, Cache: cache})

	err := f.Refresh(ctx, "0x1")
	require.Error(t, err)
	assert.Len(t, f.Store().TokenList("0x1"), 1)
}

func TestFetcher_RefreshSkipsUnsupportedChain(t *testing.T) {
	api := newTokenAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	f := NewFetcher(FetcherOptions{BaseURL: srv.URL})

	require.NoError(t, f.Refresh(context.Background(), "0x539"))
	assert.Equal(t, 0, api.count())
}

func TestFetcher_RunFollowsNetwork(t *testing.T) {
	api := newTokenAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	network := sources.NewNetworkStore("0x1")
	f := NewFetcher(FetcherOptions{BaseURL: srv.URL, Chains: network})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.Store().TokenList("0x1")) == 1 }, time.Second, 10*time.Millisecond)

	network.SetChainID("0x89")
	require.Eventually(t, func() bool { return len(f.Store().TokenList("0x89")) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestDecimalChainID(t *testing.T) {
	id, err := decimalChainID("0x89")
	require.NoError(t, err)
	assert.Equal(t, "137", id)

	_, err = decimalChainID("137")
	assert.Error(t, err)
}
