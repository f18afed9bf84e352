package domain

import "strings"

// Chain IDs as 0x-prefixed lower-case hex strings.
const (
	ChainIDMainnet   = "0x1"
	ChainIDBSC       = "0x38"
	ChainIDPolygon   = "0x89"
	ChainIDAvalanche = "0xa86a"
	ChainIDAurora    = "0x4e454152"
	ChainIDLinea     = "0xe708"
	ChainIDArbitrum  = "0xa4b1"
	ChainIDOptimism  = "0xa"
	ChainIDBase      = "0x2105"
	ChainIDZkSync    = "0x144"
	ChainIDSepolia   = "0xaa36a7"
)

// DefaultDetectionChainID is the chain where detection runs against the static
// token list even when the user disabled token detection.
const DefaultDetectionChainID = ChainIDMainnet

var detectionEnabledChains = map[string]bool{
	ChainIDMainnet:   true,
	ChainIDBSC:       true,
	ChainIDPolygon:   true,
	ChainIDAvalanche: true,
	ChainIDAurora:    true,
	ChainIDLinea:     true,
	ChainIDArbitrum:  true,
	ChainIDOptimism:  true,
	ChainIDBase:      true,
	ChainIDZkSync:    true,
}

// IsTokenDetectionEnabledForNetwork reports whether the chain supports token detection at all.
func IsTokenDetectionEnabledForNetwork(chainID string) bool {
	return detectionEnabledChains[NormalizeChainID(chainID)]
}

// NormalizeChainID lower-cases a hex chain id and strips leading zeros after 0x.
func NormalizeChainID(chainID string) string {
	id := strings.ToLower(strings.TrimSpace(chainID))
	if !strings.HasPrefix(id, "0x") {
		return id
	}
	digits := strings.TrimLeft(id[2:], "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}
