package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-detector/internal/domain"
	"token-detector/internal/storage"
)

const (
	statusTracked  = "tracked"
	statusDetected = "detected"
	statusIgnored  = "ignored"
)

// TokenRepository implements storage.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool *Pool
}

// NewTokenRepository creates a new PostgreSQL token repository.
func NewTokenRepository(pool *Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// GetState returns the token state for account+chain ordered by insertion.
func (r *TokenRepository) GetState(ctx context.Context, account, chainID string) (state domain.TokenState, err error) {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return state, err
	}
	acct, chain := storage.ScopeKey(account, chainID)
	defer func(start time.Time) { observe("get_state", start, err) }(time.Now())

	query := `
		SELECT address, symbol, decimals, status
		FROM account_tokens
		WHERE account = $1 AND chain_id = $2
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, acct, chain)
	if err != nil {
		return state, fmt.Errorf("query account tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Token
		var status string
		if err := rows.Scan(&t.Address, &t.Symbol, &t.Decimals, &status); err != nil {
			return state, fmt.Errorf("scan account token: %w", err)
		}
		switch status {
		case statusTracked:
			state.Tokens = append(state.Tokens, t)
		case statusDetected:
			state.DetectedTokens = append(state.DetectedTokens, t)
		case statusIgnored:
			state.IgnoredTokens = append(state.IgnoredTokens, t.Address)
		}
	}

	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("iterate account tokens: %w", err)
	}

	return state, nil
}

// AddTokens upserts tokens as tracked.
func (r *TokenRepository) AddTokens(ctx context.Context, account, chainID string, tokens []domain.Token) error {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return err
	}
	if err := storage.ValidateTokens(tokens); err != nil {
		return err
	}

	query := `
		INSERT INTO account_tokens (account, chain_id, address_key, address, symbol, decimals, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'tracked')
		ON CONFLICT (account, chain_id, address_key) DO UPDATE SET
			address = EXCLUDED.address,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			status = 'tracked',
			updated_at = now()
	`

	_, err := r.execBatch(ctx, "add_tokens", account, chainID, query, tokens)
	return err
}

// AddDetectedTokens inserts tokens unknown to account+chain in one transaction.
// Returns the number of rows actually inserted.
func (r *TokenRepository) AddDetectedTokens(ctx context.Context, account, chainID string, tokens []domain.Token) (int, error) {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return 0, err
	}
	if err := storage.ValidateTokens(tokens); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO account_tokens (account, chain_id, address_key, address, symbol, decimals, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'detected')
		ON CONFLICT (account, chain_id, address_key) DO NOTHING
	`

	return r.execBatch(ctx, "add_detected_tokens", account, chainID, query, tokens)
}

// IgnoreTokens marks addresses as ignored, inserting placeholders for unknown ones.
func (r *TokenRepository) IgnoreTokens(ctx context.Context, account, chainID string, addresses []string) error {
	if err := storage.ValidateScope(account, chainID); err != nil {
		return err
	}

	tokens := make([]domain.Token, len(addresses))
	for i, addr := range addresses {
		tokens[i] = domain.Token{Address: addr}
	}
	if err := storage.ValidateTokens(tokens); err != nil {
		return err
	}

	query := `
		INSERT INTO account_tokens (account, chain_id, address_key, address, symbol, decimals, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'ignored')
		ON CONFLICT (account, chain_id, address_key) DO UPDATE SET
			status = 'ignored',
			updated_at = now()
	`

	_, err := r.execBatch(ctx, "ignore_tokens", account, chainID, query, tokens)
	return err
}

// execBatch runs query once per token inside a transaction and returns the affected row count.
func (r *TokenRepository) execBatch(ctx context.Context, operation, account, chainID, query string, tokens []domain.Token) (affected int, err error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	acct, chain := storage.ScopeKey(account, chainID)
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(query, acct, chain, domain.AddressKey(t.Address), t.Address, t.Symbol, t.Decimals)
	}

	err = r.pool.inTx(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for i := range tokens {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("write token %s: %w", tokens[i].Address, err)
			}
			affected += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

var _ storage.TokenRepository = (*TokenRepository)(nil)
