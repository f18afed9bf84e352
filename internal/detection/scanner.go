package detection

import (
	"context"
	"fmt"
	"math/big"

	"token-detector/internal/domain"
	"token-detector/internal/observability"
)

// MaxBatchSize is the largest number of tokens sent in one oracle call.
const MaxBatchSize = 1000

// BalanceOracle looks up token balances of an account on a chain.
// Only tokens with a non-zero balance appear in the result, keyed by the
// address as passed in tokens.
type BalanceOracle interface {
	GetBalances(ctx context.Context, chainID, account string, tokens []string) (map[string]*big.Int, error)
}

// Batches splits addrs into consecutive slices of at most size elements.
func Batches(addrs []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	batches := make([][]string, 0, (len(addrs)+size-1)/size)
	for start := 0; start < len(addrs); start += size {
		end := start + size
		if end > len(addrs) {
			end = len(addrs)
		}
		batches = append(batches, addrs[start:end])
	}
	return batches
}

// Scanner queries the oracle batch by batch.
type Scanner struct {
	oracle    BalanceOracle
	batchSize int
}

// NewScanner creates a scanner. batchSize is clamped to (0, MaxBatchSize].
func NewScanner(oracle BalanceOracle, batchSize int) *Scanner {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Scanner{oracle: oracle, batchSize: batchSize}
}

// BatchSize returns the effective batch size.
func (s *Scanner) BatchSize() int {
	return s.batchSize
}

// Scan calls the oracle once per batch, in order, handing every result to
// onBatch before issuing the next call. The first oracle error stops the scan.
func (s *Scanner) Scan(ctx context.Context, dctx domain.DetectionContext, candidates []string, onBatch func(index int, balances map[string]*big.Int)) error {
	for i, batch := range Batches(candidates, s.batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		balances, err := s.oracle.GetBalances(ctx, dctx.ChainID, dctx.SelectedAddress, batch)
		observability.RecordOracleCall(len(batch), err)
		if err != nil {
			return fmt.Errorf("balance lookup batch %d (%d tokens): %w", i, len(batch), err)
		}
		onBatch(i, balances)
	}
	return nil
}
