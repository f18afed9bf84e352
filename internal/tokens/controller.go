// Package tokens exposes the token state of the selected account and chain.
package tokens

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"token-detector/internal/domain"
	"token-detector/internal/logging"
	"token-detector/internal/sources"
	"token-detector/internal/storage"
)

// AccountSource reports the selected account.
type AccountSource interface {
	SelectedAddress() string
	Subscribe(fn func(domain.Account)) func()
}

// NetworkSource reports the selected chain.
type NetworkSource interface {
	ChainID() string
	Subscribe(fn func()) func()
}

// Controller is an observable token store scoped to the current account+chain
// selection. It reloads from the repository whenever the selection changes.
type Controller struct {
	repo     storage.TokenRepository
	accounts AccountSource
	network  NetworkSource
	logger   zerolog.Logger

	mu        sync.RWMutex
	selection domain.DetectionContext
	state     domain.TokenState

	// publishMu orders state publication; reloads started earlier never
	// overwrite a later one.
	publishMu sync.Mutex
	reloads   atomic.Uint64
	published uint64

	listeners sources.Listeners[domain.TokenState]
	unsubs    []func()
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Repository storage.TokenRepository
	Accounts   AccountSource
	Network    NetworkSource
	Logger     *zerolog.Logger
}

// NewController creates a token controller. Call Start to load state and follow the selection.
func NewController(opts ControllerOptions) *Controller {
	return &Controller{
		repo:     opts.Repository,
		accounts: opts.Accounts,
		network:  opts.Network,
		logger:   logging.OrNop(opts.Logger).With().Str("component", "tokens").Logger(),
	}
}

// Start loads the state of the current selection and subscribes to selection changes.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.reload(ctx); err != nil {
		return err
	}

	onChange := func() {
		if err := c.reload(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("reload token state")
		}
	}

	c.mu.Lock()
	c.unsubs = append(c.unsubs,
		c.accounts.Subscribe(func(domain.Account) { onChange() }),
		c.network.Subscribe(onChange),
	)
	c.mu.Unlock()
	return nil
}

// Stop unsubscribes from selection changes.
func (c *Controller) Stop() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

// Selection returns the account+chain the current state belongs to.
func (c *Controller) Selection() domain.DetectionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

// State returns a copy of the current token state.
func (c *Controller) State() domain.TokenState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Subscribe registers fn for state changes. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(domain.TokenState)) func() {
	return c.listeners.Add(fn)
}

// AddDetectedTokens records detections for the account+chain in dctx, which may
// differ from the current selection. Addresses already tracked, ignored or
// detected in that context are skipped. Subscribers are notified only when the
// write changed the current selection's state.
func (c *Controller) AddDetectedTokens(ctx context.Context, tokens []domain.Token, dctx domain.DetectionContext) error {
	if len(tokens) == 0 {
		return nil
	}

	inserted, err := c.repo.AddDetectedTokens(ctx, dctx.SelectedAddress, dctx.ChainID, tokens)
	if err != nil {
		return fmt.Errorf("add detected tokens: %w", err)
	}

	c.logger.Debug().
		Str("account", dctx.SelectedAddress).
		Str("chain_id", dctx.ChainID).
		Int("received", len(tokens)).
		Int("inserted", inserted).
		Msg("detected tokens stored")

	if inserted == 0 || !dctx.Matches(c.Selection()) {
		return nil
	}
	return c.reload(ctx)
}

// AddTokens tracks tokens for the current selection.
func (c *Controller) AddTokens(ctx context.Context, tokens []domain.Token) error {
	sel, err := c.currentSelection()
	if err != nil {
		return err
	}
	if err := c.repo.AddTokens(ctx, sel.SelectedAddress, sel.ChainID, tokens); err != nil {
		return fmt.Errorf("add tokens: %w", err)
	}
	return c.reload(ctx)
}

// IgnoreTokens hides addresses for the current selection.
func (c *Controller) IgnoreTokens(ctx context.Context, addresses []string) error {
	sel, err := c.currentSelection()
	if err != nil {
		return err
	}
	if err := c.repo.IgnoreTokens(ctx, sel.SelectedAddress, sel.ChainID, addresses); err != nil {
		return fmt.Errorf("ignore tokens: %w", err)
	}
	return c.reload(ctx)
}

func (c *Controller) currentSelection() (domain.DetectionContext, error) {
	sel := domain.DetectionContext{
		SelectedAddress: c.accounts.SelectedAddress(),
		ChainID:         c.network.ChainID(),
	}
	if sel.SelectedAddress == "" || sel.ChainID == "" {
		return sel, fmt.Errorf("%w: no account or chain selected", storage.ErrInvalidInput)
	}
	return sel, nil
}

// reload reads the state of the current selection and publishes it. The
// result is dropped when the selection moved while the repository was read
// or a newer reload already published.
func (c *Controller) reload(ctx context.Context) error {
	gen := c.reloads.Add(1)
	sel := domain.DetectionContext{
		SelectedAddress: c.accounts.SelectedAddress(),
		ChainID:         c.network.ChainID(),
	}

	var state domain.TokenState
	if sel.SelectedAddress != "" && sel.ChainID != "" {
		var err error
		state, err = c.repo.GetState(ctx, sel.SelectedAddress, sel.ChainID)
		if err != nil {
			return fmt.Errorf("load token state: %w", err)
		}
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	current := domain.DetectionContext{
		SelectedAddress: c.accounts.SelectedAddress(),
		ChainID:         c.network.ChainID(),
	}
	if gen < c.published || !sel.Matches(current) {
		c.logger.Debug().
			Uint64("reload", gen).
			Str("account", sel.SelectedAddress).
			Str("chain_id", sel.ChainID).
			Msg("discarding stale token state")
		return nil
	}
	c.published = gen

	c.mu.Lock()
	c.selection = sel
	c.state = state
	c.mu.Unlock()

	c.listeners.Emit(state.Clone())
	return nil
}
