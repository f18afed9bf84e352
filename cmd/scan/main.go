// Command scan runs a single detection pass for one account and prints what it found.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"token-detector/internal/catalog"
	"token-detector/internal/detection"
	"token-detector/internal/domain"
	"token-detector/internal/ethereum"
	"token-detector/internal/logging"
	"token-detector/internal/sources"
	"token-detector/internal/storage/memory"
	"token-detector/internal/tokens"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns its exit code. Deferred cleanup always
// runs before the process exits.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rpcEndpoint := fs.String("rpc-endpoint", "", "JSON-RPC endpoint")
	account := fs.String("account", "", "Account address to scan")
	chainID := fs.String("chain-id", "", "Chain id (default: read from the node)")
	useTokenDetection := fs.Bool("use-token-detection", true, "Scan the full token list (false: static mainnet list only)")
	tokenAPIURL := fs.String("token-api-url", catalog.DefaultTokenAPIURL, "Token list service base URL")
	minOccurrences := fs.Int("min-occurrences", 3, "Minimum upstream lists a token must appear in")
	balanceChecker := fs.String("balance-checker", "", "Balance checker contract address (default: known deployment)")
	batchSize := fs.Int("batch-size", detection.MaxBatchSize, "Tokens per balance oracle call")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall timeout")
	logLevel := fs.String("log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.New(logging.Options{Level: *logLevel, Format: "console", Writer: stderr, Service: "scan"})

	if *rpcEndpoint == "" || *account == "" {
		fmt.Fprintln(stderr, "--rpc-endpoint and --account are required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc, err := ethereum.Dial(ctx, *rpcEndpoint)
	if err != nil {
		logger.Error().Err(err).Msg("dial rpc endpoint")
		return 1
	}
	defer rpc.Close()

	chain := domain.NormalizeChainID(*chainID)
	if chain == "" {
		id, err := rpc.ChainID(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("read chain id")
			return 1
		}
		chain = domain.NormalizeChainID(id)
	}

	var overrides map[string]string
	if *balanceChecker != "" {
		overrides = map[string]string{chain: *balanceChecker}
	}
	oracle, err := ethereum.NewMultiChainOracle(map[string]ethereum.RPCClient{chain: rpc}, overrides)
	if err != nil {
		logger.Error().Err(err).Msg("create balance oracle")
		return 1
	}

	accounts := sources.NewAccountStore(*account)
	network := sources.NewNetworkStore(chain)
	preferences := sources.NewPreferencesStore(domain.Preferences{UseTokenDetection: *useTokenDetection})

	tokenCtl := tokens.NewController(tokens.ControllerOptions{
		Repository: memory.NewTokenRepository(),
		Accounts:   accounts,
		Network:    network,
		Logger:     &logger,
	})
	if err := tokenCtl.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("load token state")
		return 1
	}
	defer tokenCtl.Stop()

	fetcher := catalog.NewFetcher(catalog.FetcherOptions{
		BaseURL:        *tokenAPIURL,
		MinOccurrences: *minOccurrences,
		Logger:         &logger,
	})
	if *useTokenDetection && domain.IsTokenDetectionEnabledForNetwork(chain) {
		if err := fetcher.Refresh(ctx, chain); err != nil {
			logger.Error().Err(err).Msg("fetch token list")
			return 1
		}
	}

	detector := detection.New(detection.Options{
		Accounts:    accounts,
		Network:     network,
		Preferences: preferences,
		Tokens:      tokenCtl,
		Catalog:     fetcher.Store(),
		Oracle:      oracle,
		Gate:        detection.NewGate(true, true),
		BatchSize:   *batchSize,
		Logger:      &logger,
	})

	result, err := detector.RunPass(ctx, detection.PassOptions{SelectedAddress: *account, ChainID: chain})
	if err != nil {
		logger.Error().Err(err).Msg("detection pass failed")
		return 1
	}
	if result.Skipped != "" {
		fmt.Fprintf(stdout, "pass skipped: %s\n", result.Skipped)
		return 0
	}

	fmt.Fprintf(stdout, "account %s on chain %s: %d candidates in %d batches, %d detected\n",
		result.Context.SelectedAddress, result.Context.ChainID, result.Candidates, result.Batches, len(result.Detections))

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tADDRESS\tDECIMALS\tBALANCE")
	for _, d := range result.Detections {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Symbol, d.Address, d.Decimals, d.Balance)
	}
	w.Flush()
	return 0
}
