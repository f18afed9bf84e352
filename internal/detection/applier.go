package detection

import (
	"context"
	"math/big"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-detector/internal/domain"
	"token-detector/internal/logging"
	"token-detector/internal/observability"
	"token-detector/internal/telemetry"
)

// TokenWriter receives detections scoped to the pass that produced them.
type TokenWriter interface {
	AddDetectedTokens(ctx context.Context, tokens []domain.Token, dctx domain.DetectionContext) error
}

// Applier turns oracle results into detections, reports them and writes them
// to the token store.
type Applier struct {
	store  TokenWriter
	sink   telemetry.Sink
	logger zerolog.Logger
}

// NewApplier creates an applier. A nil sink discards events.
func NewApplier(store TokenWriter, sink telemetry.Sink, logger *zerolog.Logger) *Applier {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Applier{
		store:  store,
		sink:   sink,
		logger: logging.OrNop(logger).With().Str("component", "applier").Logger(),
	}
}

// buildDetections matches balances against the catalog. Addresses missing
// from the catalog or reported with a zero balance are dropped.
func buildDetections(idx catalogIndex, balances map[string]*big.Int) ([]domain.Detection, []string) {
	var (
		detections []domain.Detection
		unknown    []string
	)
	for addr, balance := range balances {
		if balance != nil && balance.Sign() == 0 {
			continue
		}
		entry, ok := idx.lookup(addr)
		if !ok {
			unknown = append(unknown, addr)
			continue
		}
		detections = append(detections, domain.Detection{
			Address:  addr,
			Symbol:   entry.Symbol,
			Decimals: entry.Decimals,
			Balance:  balance,
		})
	}
	sort.Slice(detections, func(i, j int) bool {
		return domain.AddressKey(detections[i].Address) < domain.AddressKey(detections[j].Address)
	})
	return detections, unknown
}

// Apply records one batch of oracle results. The telemetry event precedes the
// store write. Store errors are logged and counted, never returned.
func (a *Applier) Apply(ctx context.Context, dctx domain.DetectionContext, idx catalogIndex, balances map[string]*big.Int) []domain.Detection {
	detections, unknown := buildDetections(idx, balances)
	for _, addr := range unknown {
		a.logger.Warn().Str("token", addr).Str("chain_id", dctx.ChainID).Msg("balance reported for token missing from catalog")
	}
	if len(detections) == 0 {
		return nil
	}

	labels := make([]string, len(detections))
	tokens := make([]domain.Token, len(detections))
	for i, d := range detections {
		labels[i] = d.Symbol + " - " + d.Address
		tokens[i] = d.Token()

		a.logger.Debug().
			Str("account", dctx.SelectedAddress).
			Str("chain_id", dctx.ChainID).
			Str("token", d.Address).
			Str("symbol", d.Symbol).
			Str("balance", formatBalance(d.Balance, d.Decimals)).
			Msg("token detected")
	}

	a.sink.Record(ctx, telemetry.NewEvent(domain.EventTokenDetected, domain.CategoryWallet, map[string]any{
		"tokens":         labels,
		"token_standard": domain.TokenStandardERC20,
		"asset_type":     domain.AssetTypeToken,
		"chain_id":       dctx.ChainID,
	}))

	if err := a.store.AddDetectedTokens(ctx, tokens, dctx); err != nil {
		observability.RecordStoreWriteError()
		a.logger.Error().Err(err).
			Str("account", dctx.SelectedAddress).
			Str("chain_id", dctx.ChainID).
			Int("tokens", len(tokens)).
			Msg("store detected tokens")
	}

	observability.RecordDetections(dctx.ChainID, len(detections))
	return detections
}

// formatBalance renders raw token units in whole-token decimal notation.
func formatBalance(raw *big.Int, decimals int) string {
	if raw == nil {
		return "unknown"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// applyQueue applies the batches of one pass in order on its own goroutine.
type applyQueue struct {
	jobs chan map[string]*big.Int
	done chan struct{}

	detections []domain.Detection
}

func (a *Applier) startQueue(ctx context.Context, dctx domain.DetectionContext, idx catalogIndex, capacity int) *applyQueue {
	q := &applyQueue{
		jobs: make(chan map[string]*big.Int, capacity),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for balances := range q.jobs {
			q.detections = append(q.detections, a.Apply(ctx, dctx, idx, balances)...)
		}
	}()
	return q
}

// push enqueues a batch result. Never blocks while capacity covers the pass's batches.
func (q *applyQueue) push(balances map[string]*big.Int) {
	q.jobs <- balances
}

// drain closes the queue and waits for every batch to be applied.
func (q *applyQueue) drain() []domain.Detection {
	close(q.jobs)
	<-q.done
	return q.detections
}
