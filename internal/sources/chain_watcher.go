package sources

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"token-detector/internal/logging"
)

// ChainIDReader reads the chain id of the connected node.
type ChainIDReader interface {
	ChainID(ctx context.Context) (string, error)
}

// ChainWatcher polls the node's chain id and mirrors it into a NetworkStore,
// so a provider switching networks surfaces as a network change.
type ChainWatcher struct {
	reader   ChainIDReader
	network  *NetworkStore
	interval time.Duration
	logger   zerolog.Logger
}

// ChainWatcherOptions configures a ChainWatcher.
type ChainWatcherOptions struct {
	Reader   ChainIDReader
	Network  *NetworkStore
	Interval time.Duration // Default: 15s
	Logger   *zerolog.Logger
}

// NewChainWatcher creates a chain watcher.
func NewChainWatcher(opts ChainWatcherOptions) *ChainWatcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ChainWatcher{
		reader:   opts.Reader,
		network:  opts.Network,
		interval: interval,
		logger:   logging.OrNop(opts.Logger).With().Str("component", "chain_watcher").Logger(),
	}
}

// Poll reads the chain id once and updates the network store.
func (w *ChainWatcher) Poll(ctx context.Context) error {
	chainID, err := w.reader.ChainID(ctx)
	if err != nil {
		return err
	}
	if prev := w.network.ChainID(); prev != chainID {
		w.logger.Info().Str("from", prev).Str("to", chainID).Msg("chain changed")
	}
	w.network.SetChainID(chainID)
	return nil
}

// Run polls until ctx is cancelled. Poll errors are logged and retried next tick.
func (w *ChainWatcher) Run(ctx context.Context) error {
	if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn().Err(err).Msg("read chain id")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn().Err(err).Msg("read chain id")
			}
		}
	}
}
