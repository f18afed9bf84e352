package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"token-detector/internal/domain"
	"token-detector/internal/logging"
	"token-detector/internal/observability"
)

// Refresh sources reported to metrics.
const (
	SourceAPI   = "api"
	SourceCache = "cache"
)

// DefaultTokenAPIURL is the public token list service.
const DefaultTokenAPIURL = "https://token.api.cx.metamask.io"

// ChainSource reports the selected chain and its changes.
type ChainSource interface {
	ChainID() string
	Subscribe(fn func()) func()
}

// apiToken is one element of the token API response.
type apiToken struct {
	Address     string   `json:"address"`
	Symbol      string   `json:"symbol"`
	Decimals    int      `json:"decimals"`
	Name        string   `json:"name"`
	IconURL     string   `json:"iconUrl"`
	Occurrences int      `json:"occurrences"`
	Aggregators []string `json:"aggregators"`
}

// Fetcher keeps a Store populated with the token list of the selected chain.
type Fetcher struct {
	baseURL         string
	httpClient      *http.Client
	store           *Store
	cache           Cache
	chains          ChainSource
	minOccurrences  int
	refreshInterval time.Duration
	cacheThreshold  time.Duration
	now             func() time.Time
	logger          zerolog.Logger
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	BaseURL         string // Default: DefaultTokenAPIURL
	HTTPClient      *http.Client
	Store           *Store
	Cache           Cache       // Default: MemoryCache
	Chains          ChainSource // required by Run
	MinOccurrences  int         // Default: 3
	RefreshInterval time.Duration
	CacheThreshold  time.Duration
	Logger          *zerolog.Logger
}

// NewFetcher creates a token list fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		httpClient:      opts.HTTPClient,
		store:           opts.Store,
		cache:           opts.Cache,
		chains:          opts.Chains,
		minOccurrences:  opts.MinOccurrences,
		refreshInterval: opts.RefreshInterval,
		cacheThreshold:  opts.CacheThreshold,
		now:             time.Now,
		logger:          logging.OrNop(opts.Logger).With().Str("component", "token_list").Logger(),
	}

	if f.baseURL == "" {
		f.baseURL = DefaultTokenAPIURL
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if f.store == nil {
		f.store = NewStore()
	}
	if f.cache == nil {
		f.cache = NewMemoryCache()
	}
	if f.minOccurrences <= 0 {
		f.minOccurrences = 3
	}
	if f.refreshInterval <= 0 {
		f.refreshInterval = 4 * time.Hour
	}
	if f.cacheThreshold <= 0 {
		f.cacheThreshold = 24 * time.Hour
	}

	return f
}

// Store returns the store the fetcher writes to.
func (f *Fetcher) Store() *Store {
	return f.store
}

// Fetch downloads the token list of chainID, dropping tokens seen on fewer
// than the minimum number of upstream lists.
func (f *Fetcher) Fetch(ctx context.Context, chainID string) (domain.TokenList, error) {
	decimalID, err := decimalChainID(chainID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/tokens/%s?occurrenceFloor=%d", f.baseURL, decimalID, f.minOccurrences)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokens []apiToken
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}

	list := make(domain.TokenList, len(tokens))
	for _, t := range tokens {
		if t.Occurrences < f.minOccurrences {
			continue
		}
		// A malformed address would fail every balance batch it lands in.
		if !common.IsHexAddress(t.Address) {
			f.logger.Warn().
				Str("chain_id", chainID).
				Str("address", t.Address).
				Str("symbol", t.Symbol).
				Msg("skipping token list entry with invalid address")
			continue
		}
		list[t.Address] = domain.CatalogEntry{
			Address:     t.Address,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			Name:        t.Name,
			IconURL:     t.IconURL,
			Occurrences: t.Occurrences,
			Aggregators: t.Aggregators,
		}
	}
	return list, nil
}

// Refresh loads the list of chainID into the store, from cache when it is
// fresh and from the token API otherwise. Chains without detection support
// are skipped.
func (f *Fetcher) Refresh(ctx context.Context, chainID string) error {
	chainID = domain.NormalizeChainID(chainID)
	if !domain.IsTokenDetectionEnabledForNetwork(chainID) {
		f.logger.Debug().Str("chain_id", chainID).Msg("token detection not supported, skipping list refresh")
		return nil
	}

	cached, ok, err := f.cache.Get(ctx, chainID)
	if err != nil {
		f.logger.Warn().Err(err).Str("chain_id", chainID).Msg("read token list cache")
	}
	if ok && cached.Fresh(f.now(), f.cacheThreshold) {
		f.store.SetTokenList(chainID, cached.Data)
		observability.RecordTokenListRefresh(SourceCache, chainID, len(cached.Data))
		return nil
	}

	list, err := f.Fetch(ctx, chainID)
	if err != nil {
		if ok {
			// Stale data beats no data.
			f.store.SetTokenList(chainID, cached.Data)
		}
		return fmt.Errorf("refresh token list %s: %w", chainID, err)
	}

	if err := f.cache.Put(ctx, chainID, CachedList{FetchedAt: f.now(), Data: list}); err != nil {
		f.logger.Warn().Err(err).Str("chain_id", chainID).Msg("write token list cache")
	}
	f.store.SetTokenList(chainID, list)
	observability.RecordTokenListRefresh(SourceAPI, chainID, len(list))

	f.logger.Info().Str("chain_id", chainID).Int("tokens", len(list)).Msg("token list refreshed")
	return nil
}

// Run refreshes the selected chain's list on start, on every network change
// and every refresh interval until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := f.chains.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	refresh := func() {
		if err := f.Refresh(ctx, f.chains.ChainID()); err != nil && ctx.Err() == nil {
			f.logger.Warn().Err(err).Msg("token list refresh failed")
		}
	}
	refresh()

	ticker := time.NewTicker(f.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			refresh()
		case <-ticker.C:
			refresh()
		}
	}
}

// decimalChainID converts a 0x-prefixed chain id to its decimal form.
func decimalChainID(chainID string) (string, error) {
	id := domain.NormalizeChainID(chainID)
	if !strings.HasPrefix(id, "0x") {
		return "", fmt.Errorf("invalid chain id %q", chainID)
	}
	n, err := strconv.ParseUint(id[2:], 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chain id %q: %w", chainID, err)
	}
	return strconv.FormatUint(n, 10), nil
}
