package tokens

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-detector/internal/domain"
	"token-detector/internal/sources"
	"token-detector/internal/storage"
	"token-detector/internal/storage/memory"
)

const (
	alice = "0xA11ce00000000000000000000000000000000001"
	bob   = "0xB0b0000000000000000000000000000000000002"
	usdt  = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	dai   = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
)

type fixture struct {
	repo     *memory.TokenRepository
	accounts *sources.AccountStore
	network  *sources.NetworkStore
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     memory.NewTokenRepository(),
		accounts: sources.NewAccountStore(alice),
		network:  sources.NewNetworkStore("0x1"),
	}
	f.ctrl = NewController(ControllerOptions{
		Repository: f.repo,
		Accounts:   f.accounts,
		Network:    f.network,
	})
	require.NoError(t, f.ctrl.Start(context.Background()))
	t.Cleanup(f.ctrl.Stop)
	return f
}

func TestController_AddDetectedTokensPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var published []domain.TokenState
	f.ctrl.Subscribe(func(s domain.TokenState) { published = append(published, s) })

	dctx := domain.DetectionContext{SelectedAddress: alice, ChainID: "0x1"}
	require.NoError(t, f.ctrl.AddDetectedTokens(ctx, []domain.Token{{Address: usdt, Symbol: "USDT", Decimals: 6}}, dctx))

	require.Len(t, published, 1)
	assert.Equal(t, []domain.Token{{Address: usdt, Symbol: "USDT", Decimals: 6}}, published[0].DetectedTokens)
	assert.Equal(t, published[0], f.ctrl.State())

	// Idempotent: nothing new, no publication.
	require.NoError(t, f.ctrl.AddDetectedTokens(ctx, []domain.Token{{Address: usdt, Symbol: "USDT", Decimals: 6}}, dctx))
	assert.Len(t, published, 1)
}

func TestController_AddDetectedTokensForOtherContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var published int
	f.ctrl.Subscribe(func(domain.TokenState) { published++ })

	other := domain.DetectionContext{SelectedAddress: bob, ChainID: "0x1"}
	require.NoError(t, f.ctrl.AddDetectedTokens(ctx, []domain.Token{{Address: dai, Symbol: "DAI", Decimals: 18}}, other))

	assert.Equal(t, 0, published)
	assert.Empty(t, f.ctrl.State().DetectedTokens)

	// The write landed under bob and shows up once bob is selected.
	f.accounts.SetSelectedAddress(bob)
	assert.Len(t, f.ctrl.State().DetectedTokens, 1)
	assert.Equal(t, other, f.ctrl.Selection())
}

func TestController_FollowsNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.AddTokens(ctx, []domain.Token{{Address: usdt, Symbol: "USDT", Decimals: 6}}))
	assert.Len(t, f.ctrl.State().Tokens, 1)

	f.network.SetChainID("0x89")
	assert.Empty(t, f.ctrl.State().Tokens)

	f.network.SetChainID("0x1")
	assert.Len(t, f.ctrl.State().Tokens, 1)
}

func TestController_IgnoreTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dctx := domain.DetectionContext{SelectedAddress: alice, ChainID: "0x1"}
	require.NoError(t, f.ctrl.AddDetectedTokens(ctx, []domain.Token{{Address: usdt, Symbol: "USDT", Decimals: 6}}, dctx))
	require.NoError(t, f.ctrl.IgnoreTokens(ctx, []string{domain.AddressKey(usdt)}))

	state := f.ctrl.State()
	assert.Empty(t, state.DetectedTokens)
	assert.Equal(t, []string{usdt}, state.IgnoredTokens)
}

func TestController_NoSelection(t *testing.T) {
	repo := memory.NewTokenRepository()
	ctrl := NewController(ControllerOptions{
		Repository: repo,
		Accounts:   sources.NewAccountStore(""),
		Network:    sources.NewNetworkStore("0x1"),
	})
	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	assert.Equal(t, domain.TokenState{}, ctrl.State())

	err := ctrl.AddTokens(context.Background(), []domain.Token{{Address: usdt}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

// gatedRepository blocks GetState for one account until released.
type gatedRepository struct {
	*memory.TokenRepository

	mu      sync.Mutex
	account string
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepository) arm(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = account
	r.entered = make(chan struct{})
	r.release = make(chan struct{})
}

func (r *gatedRepository) GetState(ctx context.Context, account, chainID string) (domain.TokenState, error) {
	r.mu.Lock()
	blocked := r.account != "" && strings.EqualFold(r.account, account)
	entered, release := r.entered, r.release
	if blocked {
		r.account = ""
	}
	r.mu.Unlock()

	if blocked {
		// Read before blocking so the stale result is what gets returned.
		state, err := r.TokenRepository.GetState(ctx, account, chainID)
		close(entered)
		<-release
		return state, err
	}
	return r.TokenRepository.GetState(ctx, account, chainID)
}

func TestController_StaleReloadDoesNotOverwriteNewSelection(t *testing.T) {
	repo := &gatedRepository{TokenRepository: memory.NewTokenRepository()}
	accounts := sources.NewAccountStore(alice)
	network := sources.NewNetworkStore("0x1")
	ctrl := NewController(ControllerOptions{Repository: repo, Accounts: accounts, Network: network})
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Stop)

	repo.arm(alice)
	dctx := domain.DetectionContext{SelectedAddress: alice, ChainID: "0x1"}
	done := make(chan error, 1)
	go func() {
		done <- ctrl.AddDetectedTokens(context.Background(),
			[]domain.Token{{Address: usdt, Symbol: "USDT", Decimals: 6}, {Address: dai, Symbol: "DAI", Decimals: 18}}, dctx)
	}()

	select {
	case <-repo.entered:
	case <-time.After(time.Second):
		t.Fatal("reload for alice never reached the repository")
	}

	accounts.SetSelectedAddress(bob)
	close(repo.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AddDetectedTokens did not return")
	}

	assert.True(t, ctrl.Selection().Matches(domain.DetectionContext{SelectedAddress: bob, ChainID: "0x1"}))
	assert.Empty(t, ctrl.State().DetectedTokens)

	// alice's write itself still landed.
	state, err := repo.TokenRepository.GetState(context.Background(), alice, "0x1")
	require.NoError(t, err)
	assert.Len(t, state.DetectedTokens, 2)
}
