// Package ethereum implements the JSON-RPC transport and the single-call
// balance checker used as the balance oracle for token detection.
package ethereum

import "context"

// RPCClient defines the subset of the Ethereum JSON-RPC API used here.
type RPCClient interface {
	// ChainID returns the chain id of the connected node as 0x-prefixed hex.
	ChainID(ctx context.Context) (string, error)

	// Call executes a read-only message call against the latest block.
	Call(ctx context.Context, msg CallMsg) ([]byte, error)
}

// CallMsg is the subset of eth_call parameters used for contract reads.
type CallMsg struct {
	To   string // contract address
	Data []byte // ABI-encoded call data
}
