// Package detection finds catalog tokens an account holds but does not track yet.
//
// A Controller runs reconciliation passes: on an interval, and whenever the
// selected account, the selected chain or the detection preference changes
// while the Gate is active. Each pass resolves candidates from the catalog
// minus the exclusion sets, scans them in batches against a BalanceOracle and
// applies the non-zero results to the token store.
package detection

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-detector/internal/catalog"
	"token-detector/internal/domain"
	"token-detector/internal/logging"
	"token-detector/internal/observability"
	"token-detector/internal/telemetry"
)

// DefaultInterval is the polling interval between passes.
const DefaultInterval = 3 * time.Minute

// Restart reasons.
const (
	ReasonAccountChanged    = "account_changed"
	ReasonNetworkChanged    = "network_changed"
	ReasonPreferenceChanged = "preference_changed"
	ReasonActivated         = "activated"
	ReasonManual            = "manual"
)

// Skip reasons reported in PassResult.
const (
	SkipInactive          = "inactive"
	SkipNoAccount         = "no_account"
	SkipUnsupportedChain  = "unsupported_chain"
	SkipDetectionDisabled = "detection_disabled"
)

// AccountSource reports the selected account.
type AccountSource interface {
	SelectedAddress() string
	Subscribe(fn func(domain.Account)) func()
}

// NetworkSource reports the selected chain. Change events carry no payload.
type NetworkSource interface {
	ChainID() string
	Subscribe(fn func()) func()
}

// PreferenceSource reports the token detection preference.
type PreferenceSource interface {
	UseTokenDetection() bool
	Subscribe(fn func(domain.Preferences)) func()
}

// SessionSource reports whether the wallet session is unlocked.
type SessionSource interface {
	IsUnlocked() bool
	Subscribe(fn func(domain.SessionState)) func()
}

// TokenStore is the observable store detections are written to.
type TokenStore interface {
	TokenWriter
	State() domain.TokenState
	Subscribe(fn func(domain.TokenState)) func()
}

// CatalogSource provides the token list of a chain.
type CatalogSource interface {
	TokenList(chainID string) domain.TokenList
}

// PassOptions overrides the cached selection for one pass. Empty fields fall
// back to the cached values.
type PassOptions struct {
	SelectedAddress string
	ChainID         string
}

// PassResult summarizes one pass.
type PassResult struct {
	Context    domain.DetectionContext
	Skipped    string // non-empty when the pass did not scan
	Candidates int
	Batches    int
	Detections []domain.Detection
}

// Options configures a Controller.
type Options struct {
	Accounts    AccountSource
	Network     NetworkSource
	Preferences PreferenceSource
	Session     SessionSource // optional, seeds and follows Gate.SetUnlocked
	Tokens      TokenStore
	Catalog     CatalogSource
	Oracle      BalanceOracle
	Telemetry   telemetry.Sink

	// StaticCatalog is scanned on mainnet when detection is disabled.
	// Default: catalog.StaticMainnetTokenList.
	StaticCatalog func() domain.TokenList

	Gate      *Gate         // Default: NewGate(false, false)
	Interval  time.Duration // Default: DefaultInterval
	BatchSize int           // Default: MaxBatchSize
	Logger    *zerolog.Logger
}

// cachedState is the controller's view of its change sources.
type cachedState struct {
	address           string
	chainID           string
	useTokenDetection bool
}

// Controller schedules and runs reconciliation passes.
type Controller struct {
	accounts    AccountSource
	network     NetworkSource
	preferences PreferenceSource
	session     SessionSource
	tokens      TokenStore
	catalog     CatalogSource
	static      func() domain.TokenList

	gate     *Gate
	tracker  *Tracker
	scanner  *Scanner
	applier  *Applier
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cached  cachedState
	ctx     context.Context
	cancel  context.CancelFunc
	unsubs  []func()
	stopped bool

	timerMu   sync.Mutex
	timerStop chan struct{}
	timerDone chan struct{}

	passes sync.WaitGroup
	seq    uint64
}

// New creates a controller. Call Start to follow the sources and arm the timer.
func New(opts Options) *Controller {
	c := &Controller{
		accounts:    opts.Accounts,
		network:     opts.Network,
		preferences: opts.Preferences,
		session:     opts.Session,
		tokens:      opts.Tokens,
		catalog:     opts.Catalog,
		static:      opts.StaticCatalog,
		gate:        opts.Gate,
		tracker:     NewTracker(),
		scanner:     NewScanner(opts.Oracle, opts.BatchSize),
		interval:    opts.Interval,
		logger:      logging.OrNop(opts.Logger).With().Str("component", "detection").Logger(),
		ctx:         context.Background(),
	}

	if c.static == nil {
		c.static = catalog.StaticMainnetTokenList
	}
	if c.gate == nil {
		c.gate = NewGate(false, false)
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	c.applier = NewApplier(opts.Tokens, opts.Telemetry, opts.Logger)

	return c
}

// Gate returns the activation gate.
func (c *Controller) Gate() *Gate {
	return c.gate
}

// Tracker returns the exclusion set tracker.
func (c *Controller) Tracker() *Tracker {
	return c.tracker
}

// Start seeds the cached state, subscribes to every change source and arms
// the interval timer. When the gate is already active a first pass starts
// right away. Passes started later run under ctx.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.stopped = false
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.cached = cachedState{
		address:           c.accounts.SelectedAddress(),
		chainID:           domain.NormalizeChainID(c.network.ChainID()),
		useTokenDetection: c.preferences.UseTokenDetection(),
	}
	c.mu.Unlock()

	c.tracker.Update(c.tokens.State())
	if c.session != nil {
		c.gate.SetUnlocked(c.session.IsUnlocked())
	}
	c.gate.OnActivate(func() { c.restartFor(ReasonActivated) })

	unsubs := []func(){
		c.tokens.Subscribe(c.tracker.Update),
		c.accounts.Subscribe(func(a domain.Account) {
			c.onRelevantChange(ReasonAccountChanged, func(s *cachedState) bool {
				if domain.EqualAddress(s.address, a.Address) {
					return false
				}
				s.address = a.Address
				return true
			})
		}),
		c.network.Subscribe(func() {
			chainID := domain.NormalizeChainID(c.network.ChainID())
			c.onRelevantChange(ReasonNetworkChanged, func(s *cachedState) bool {
				if s.chainID == chainID {
					return false
				}
				s.chainID = chainID
				return true
			})
		}),
		c.preferences.Subscribe(func(p domain.Preferences) {
			c.onRelevantChange(ReasonPreferenceChanged, func(s *cachedState) bool {
				if s.useTokenDetection == p.UseTokenDetection {
					return false
				}
				s.useTokenDetection = p.UseTokenDetection
				return true
			})
		}),
	}
	if c.session != nil {
		unsubs = append(unsubs, c.session.Subscribe(func(s domain.SessionState) {
			c.gate.SetUnlocked(s.IsUnlocked)
		}))
	}

	c.mu.Lock()
	c.unsubs = unsubs
	c.mu.Unlock()

	c.SetInterval(c.interval)
	if c.gate.Active() {
		c.restartFor(ReasonActivated)
	}
}

// Stop unsubscribes from all sources, disarms the timer, cancels in-flight
// passes and waits for them to return. No pass starts after Stop.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	unsubs := c.unsubs
	c.unsubs = nil
	cancel := c.cancel
	c.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	c.gate.OnActivate(nil)
	c.SetInterval(0)
	if cancel != nil {
		cancel()
	}
	c.passes.Wait()
}

// Wait blocks until every in-flight pass has finished.
func (c *Controller) Wait() {
	c.passes.Wait()
}

// SetInterval tears down the current timer and, when d > 0, arms a new one
// that starts a pass every d.
func (c *Controller) SetInterval(d time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.timerStop != nil {
		close(c.timerStop)
		<-c.timerDone
		c.timerStop, c.timerDone = nil, nil
	}
	if d <= 0 {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.timerStop, c.timerDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				c.spawnPass(PassOptions{})
			}
		}
	}()
}

// Restart starts a pass in the background and re-arms the timer with the
// default interval. It does nothing and returns false when the gate is
// inactive or no account is selected.
func (c *Controller) Restart(opts PassOptions) bool {
	dctx := c.resolve(opts)
	if !c.gate.Active() || dctx.SelectedAddress == "" {
		return false
	}
	if !c.spawnPass(opts) {
		return false
	}
	c.SetInterval(c.interval)
	return true
}

// RunPass runs one pass synchronously and returns the oracle error, if any.
// It never touches the interval timer.
func (c *Controller) RunPass(ctx context.Context, opts PassOptions) (PassResult, error) {
	start := time.Now()
	dctx := c.resolve(opts)
	result := PassResult{Context: dctx}

	c.mu.Lock()
	c.seq++
	pass := c.seq
	c.mu.Unlock()

	log := c.logger.With().
		Uint64("pass", pass).
		Str("account", dctx.SelectedAddress).
		Str("chain_id", dctx.ChainID).
		Logger()

	list, skip := c.effectiveCatalog(dctx)
	if skip != "" {
		result.Skipped = skip
		observability.RecordPass(observability.OutcomeSkipped, 0, 0)
		log.Debug().Str("reason", skip).Msg("pass skipped")
		return result, nil
	}

	candidates := Resolve(list, c.tracker.Snapshot())
	result.Candidates = len(candidates)
	result.Batches = (len(candidates) + c.scanner.BatchSize() - 1) / c.scanner.BatchSize()

	queue := c.applier.startQueue(ctx, dctx, indexCatalog(list), result.Batches)
	scanErr := c.scanner.Scan(ctx, dctx, candidates, func(_ int, balances map[string]*big.Int) {
		queue.push(balances)
	})
	result.Detections = queue.drain()

	elapsed := time.Since(start)
	if scanErr != nil {
		observability.RecordPass(observability.OutcomeFailed, elapsed.Seconds(), len(candidates))
		if errors.Is(scanErr, context.Canceled) {
			log.Debug().Msg("pass cancelled")
		} else {
			log.Warn().Err(scanErr).Int("candidates", len(candidates)).Msg("pass aborted")
		}
		return result, scanErr
	}

	observability.RecordPass(observability.OutcomeCompleted, elapsed.Seconds(), len(candidates))
	observability.RecordPassCompleted(float64(time.Now().Unix()))
	log.Info().
		Int("candidates", len(candidates)).
		Int("batches", result.Batches).
		Int("detected", len(result.Detections)).
		Dur("duration", elapsed).
		Msg("pass completed")
	return result, nil
}

// effectiveCatalog applies the gating rules and picks the list to scan.
// A non-empty skip reason means no oracle call may be made.
func (c *Controller) effectiveCatalog(dctx domain.DetectionContext) (domain.TokenList, string) {
	if !c.gate.Active() {
		return nil, SkipInactive
	}
	if dctx.SelectedAddress == "" {
		return nil, SkipNoAccount
	}
	if !domain.IsTokenDetectionEnabledForNetwork(dctx.ChainID) {
		return nil, SkipUnsupportedChain
	}
	if c.preferences.UseTokenDetection() {
		return c.catalog.TokenList(dctx.ChainID), ""
	}
	if dctx.ChainID == domain.DefaultDetectionChainID {
		return c.static(), ""
	}
	return nil, SkipDetectionDisabled
}

// resolve merges opts over the cached selection.
func (c *Controller) resolve(opts PassOptions) domain.DetectionContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	dctx := domain.DetectionContext{SelectedAddress: c.cached.address, ChainID: c.cached.chainID}
	if opts.SelectedAddress != "" {
		dctx.SelectedAddress = opts.SelectedAddress
	}
	if opts.ChainID != "" {
		dctx.ChainID = domain.NormalizeChainID(opts.ChainID)
	}
	return dctx
}

// spawnPass starts a pass in the background unless the controller is stopped.
func (c *Controller) spawnPass(opts PassOptions) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	ctx := c.ctx
	// Add under mu so Stop's Wait never races a new pass.
	c.passes.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.passes.Done()
		// Errors are logged by RunPass; the timer keeps running.
		_, _ = c.RunPass(ctx, opts)
	}()
	return true
}

// onRelevantChange applies patch to the cached state and restarts detection
// when it reports a change.
func (c *Controller) onRelevantChange(reason string, patch func(*cachedState) bool) {
	c.mu.Lock()
	changed := patch(&c.cached)
	c.mu.Unlock()

	if changed {
		c.restartFor(reason)
	}
}

func (c *Controller) restartFor(reason string) {
	if c.Restart(PassOptions{}) {
		observability.RecordRestart(reason)
		c.logger.Debug().Str("reason", reason).Msg("detection restarted")
	}
}

// DetectNow restarts detection on request, e.g. from the control API.
func (c *Controller) DetectNow() bool {
	started := c.Restart(PassOptions{})
	if started {
		observability.RecordRestart(ReasonManual)
	}
	return started
}
