package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"token-detector/internal/domain"
)

// balanceCheckerABI is the ABI of the single-call balance checker contract.
const balanceCheckerABI = `[{
	"constant": true,
	"inputs": [
		{"name": "users", "type": "address[]"},
		{"name": "tokens", "type": "address[]"}
	],
	"name": "balances",
	"outputs": [{"name": "", "type": "uint256[]"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// DefaultBalanceCheckerAddresses lists known single-call balance checker deployments.
// Other chains need an explicit address from configuration.
var DefaultBalanceCheckerAddresses = map[string]string{
	domain.ChainIDMainnet:   "0xb1f8e55c7f64d203c1400b9d8555d050f94adf39",
	domain.ChainIDBSC:       "0x2352c63A83f9Fd126af8676146721Fa00924d7e4",
	domain.ChainIDPolygon:   "0x2352c63A83f9Fd126af8676146721Fa00924d7e4",
	domain.ChainIDAvalanche: "0xD023D153a0DFa485130ECFdE2FAA7e612EF94818",
	domain.ChainIDArbitrum:  "0x151E24A486D7258dd7C33Fb67E4bB01919B7B32c",
	domain.ChainIDOptimism:  "0xB1c568e9C3E6bdaf755A60c7418C269eb11524FC",
}

// ErrUnsupportedChain is returned when no balance checker is known for a chain.
var ErrUnsupportedChain = errors.New("no balance checker deployed on chain")

// BalanceChecker reads many ERC-20 balances of one account in a single eth_call.
// One checker serves one chain; the caller routes by chain id.
type BalanceChecker struct {
	rpc      RPCClient
	contract common.Address
	abi      abi.ABI
}

// NewBalanceChecker creates a balance checker bound to the contract address.
func NewBalanceChecker(rpc RPCClient, contractAddress string) (*BalanceChecker, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid balance checker address %q", contractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(balanceCheckerABI))
	if err != nil {
		return nil, fmt.Errorf("parse balance checker abi: %w", err)
	}
	return &BalanceChecker{
		rpc:      rpc,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
	}, nil
}

// GetBalances returns the non-zero balances of account for the given tokens.
// Keys are the token addresses exactly as passed in; zero balances are omitted.
func (b *BalanceChecker) GetBalances(ctx context.Context, account string, tokens []string) (map[string]*big.Int, error) {
	if len(tokens) == 0 {
		return map[string]*big.Int{}, nil
	}
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("invalid account address %q", account)
	}

	tokenAddrs := make([]common.Address, len(tokens))
	for i, t := range tokens {
		if !common.IsHexAddress(t) {
			return nil, fmt.Errorf("invalid token address %q", t)
		}
		tokenAddrs[i] = common.HexToAddress(t)
	}

	data, err := b.abi.Pack("balances", []common.Address{common.HexToAddress(account)}, tokenAddrs)
	if err != nil {
		return nil, fmt.Errorf("pack balances call: %w", err)
	}

	out, err := b.rpc.Call(ctx, CallMsg{To: b.contract.Hex(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("balances call: %w", err)
	}

	values, err := b.abi.Unpack("balances", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balances: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack balances: expected 1 output, got %d", len(values))
	}
	balances, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack balances: unexpected type %T", values[0])
	}
	if len(balances) != len(tokens) {
		return nil, fmt.Errorf("balances length mismatch: got %d, want %d", len(balances), len(tokens))
	}

	result := make(map[string]*big.Int)
	for i, bal := range balances {
		if bal != nil && bal.Sign() > 0 {
			result[tokens[i]] = bal
		}
	}
	return result, nil
}

// MultiChainOracle routes balance lookups to the checker of the requested chain,
// so a pass keeps querying its own chain after the active network changed.
type MultiChainOracle struct {
	checkers map[string]*BalanceChecker
}

// NewMultiChainOracle builds one balance checker per chain that has an RPC client.
// Addresses override DefaultBalanceCheckerAddresses when provided.
func NewMultiChainOracle(clients map[string]RPCClient, addresses map[string]string) (*MultiChainOracle, error) {
	merged := make(map[string]string, len(DefaultBalanceCheckerAddresses))
	for chainID, addr := range DefaultBalanceCheckerAddresses {
		merged[chainID] = addr
	}
	for chainID, addr := range addresses {
		merged[domain.NormalizeChainID(chainID)] = addr
	}

	o := &MultiChainOracle{checkers: make(map[string]*BalanceChecker, len(clients))}
	for chainID, rpc := range clients {
		chainID = domain.NormalizeChainID(chainID)
		addr, ok := merged[chainID]
		if !ok {
			return nil, fmt.Errorf("chain %s: %w", chainID, ErrUnsupportedChain)
		}
		checker, err := NewBalanceChecker(rpc, addr)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", chainID, err)
		}
		o.checkers[chainID] = checker
	}
	return o, nil
}

// GetBalances looks up balances on the given chain.
func (o *MultiChainOracle) GetBalances(ctx context.Context, chainID, account string, tokens []string) (map[string]*big.Int, error) {
	checker, ok := o.checkers[domain.NormalizeChainID(chainID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainID)
	}
	return checker.GetBalances(ctx, account, tokens)
}

// Chains returns the chain ids served by this oracle.
func (o *MultiChainOracle) Chains() []string {
	ids := make([]string, 0, len(o.checkers))
	for id := range o.checkers {
		ids = append(ids, id)
	}
	return ids
}
