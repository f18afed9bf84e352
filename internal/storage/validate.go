package storage

import (
	"fmt"
	"strings"

	"token-detector/internal/domain"
)

// ValidateScope checks the account+chain key of a repository call.
func ValidateScope(account, chainID string) error {
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("%w: empty account", ErrInvalidInput)
	}
	if strings.TrimSpace(chainID) == "" {
		return fmt.Errorf("%w: empty chain id", ErrInvalidInput)
	}
	return nil
}

// ValidateTokens rejects tokens without an address.
func ValidateTokens(tokens []domain.Token) error {
	for i, t := range tokens {
		if strings.TrimSpace(t.Address) == "" {
			return fmt.Errorf("%w: token %d has empty address", ErrInvalidInput, i)
		}
	}
	return nil
}

// ScopeKey builds the normalized account+chain key.
func ScopeKey(account, chainID string) (string, string) {
	return domain.AddressKey(account), domain.NormalizeChainID(chainID)
}
