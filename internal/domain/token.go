package domain

import (
	"math/big"
	"strings"
)

// CatalogEntry represents a token known to the reference token list of a chain.
type CatalogEntry struct {
	Address     string // chain-specific token contract address
	Symbol      string
	Decimals    int
	Name        string   // optional
	IconURL     string   // optional
	Occurrences int      // number of upstream lists carrying this token
	Aggregators []string // upstream list names (optional)
}

// TokenList maps token address to catalog metadata.
// Keys keep the casing of the upstream list; compare with AddressKey.
type TokenList map[string]CatalogEntry

// Token is an address-bearing record held by the token store.
type Token struct {
	Address  string
	Symbol   string
	Decimals int
}

// TokenState is the token store snapshot for one account+chain selection.
type TokenState struct {
	Tokens         []Token  // tracked by the user
	IgnoredTokens  []string // hidden by the user
	DetectedTokens []Token  // found by detection, not yet tracked
}

// Clone returns a deep copy of the state.
func (s TokenState) Clone() TokenState {
	return TokenState{
		Tokens:         append([]Token(nil), s.Tokens...),
		IgnoredTokens:  append([]string(nil), s.IgnoredTokens...),
		DetectedTokens: append([]Token(nil), s.DetectedTokens...),
	}
}

// DetectionContext scopes a reconciliation pass.
// Immutable for the duration of one pass.
type DetectionContext struct {
	SelectedAddress string
	ChainID         string
}

// Matches reports whether both contexts address the same account and chain.
func (c DetectionContext) Matches(other DetectionContext) bool {
	return EqualAddress(c.SelectedAddress, other.SelectedAddress) &&
		strings.EqualFold(c.ChainID, other.ChainID)
}

// Detection is a catalog token confirmed to hold a non-zero balance.
type Detection struct {
	Address  string
	Symbol   string
	Decimals int
	Balance  *big.Int // raw units, nil when the oracle did not report an amount
}

// Token converts the detection into a token store record.
func (d Detection) Token() Token {
	return Token{Address: d.Address, Symbol: d.Symbol, Decimals: d.Decimals}
}

// AddressKey normalizes an address for case-insensitive comparison and map keys.
func AddressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// EqualAddress compares two addresses case-insensitively.
func EqualAddress(a, b string) bool {
	return AddressKey(a) == AddressKey(b)
}
