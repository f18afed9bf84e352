package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-detector/internal/catalog"
	"token-detector/internal/control"
	"token-detector/internal/detection"
	"token-detector/internal/domain"
	"token-detector/internal/ethereum"
	"token-detector/internal/logging"
	"token-detector/internal/sources"
	"token-detector/internal/storage"
	"token-detector/internal/storage/clickhouse"
	"token-detector/internal/storage/memory"
	"token-detector/internal/storage/migrations"
	pgstore "token-detector/internal/storage/postgres"
	"token-detector/internal/telemetry"
	"token-detector/internal/tokens"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "detector",
	})

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, &logger)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("detector stopped")
	}
	logger.Info().Msg("shutdown complete")
}

// noopSurface keeps the gate's open flag pinned in headless mode.
type noopSurface struct{}

func (noopSurface) SetOpen(bool) {}

func run(ctx context.Context, cfg Config, logger *zerolog.Logger) error {
	// RPC clients, one per chain. The primary endpoint also drives the network source.
	primary, err := ethereum.Dial(ctx, cfg.RPCEndpoint)
	if err != nil {
		return err
	}
	defer primary.Close()
	chainID, err := primary.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id from %s: %w", cfg.RPCEndpoint, err)
	}
	chainID = domain.NormalizeChainID(chainID)
	logger.Info().Str("chain_id", chainID).Msg("connected to rpc endpoint")

	clients := map[string]ethereum.RPCClient{chainID: primary}
	for id, endpoint := range cfg.ChainRPC {
		id = domain.NormalizeChainID(id)
		if id == chainID {
			continue
		}
		client, err := ethereum.Dial(ctx, endpoint)
		if err != nil {
			return err
		}
		defer client.Close()
		clients[id] = client
	}
	oracle, err := ethereum.NewMultiChainOracle(clients, cfg.BalanceCheckers)
	if err != nil {
		return fmt.Errorf("create balance oracle: %w", err)
	}

	// Change sources
	accounts := sources.NewAccountStore(cfg.Account)
	network := sources.NewNetworkStore(chainID)
	preferences := sources.NewPreferencesStore(domain.Preferences{UseTokenDetection: cfg.UseTokenDetection})
	keyring := sources.NewKeyringStore(cfg.StartUnlocked)

	// Token state
	var repo storage.TokenRepository = memory.NewTokenRepository()
	if cfg.Store == "postgres" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithMaxConns(int32(cfg.PostgresMaxConns)))
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		repo = pgstore.NewTokenRepository(pool)
		logger.Info().Msg("using postgres token store")
	}

	tokenCtl := tokens.NewController(tokens.ControllerOptions{
		Repository: repo,
		Accounts:   accounts,
		Network:    network,
		Logger:     logger,
	})
	if err := tokenCtl.Start(ctx); err != nil {
		return fmt.Errorf("load token state: %w", err)
	}
	defer tokenCtl.Stop()

	// Telemetry fan-out
	gate := detection.NewGate(cfg.StartUnlocked, cfg.Headless)
	var surface control.SurfaceGate = gate
	if cfg.Headless {
		surface = noopSurface{}
	}
	hub := control.NewHub(surface, logger)

	sinks := telemetry.Multi{telemetry.NewLogSink(logger), hub}
	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()
		sinks = append(sinks, telemetry.NewStoreSink(clickhouse.NewTelemetryEventStore(conn), logger))
	}
	if cfg.NATSURL != "" {
		nc, err := telemetry.ConnectNATS(telemetry.NATSConfig{
			URL:            cfg.NATSURL,
			Name:           "token-detector",
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
			ConnectTimeout: 5 * time.Second,
		}, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		sinks = append(sinks, telemetry.NewNATSSink(nc, cfg.NATSSubject, logger))
	}

	// Token catalog
	var cache catalog.Cache = catalog.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		cache = catalog.NewRedisCache(rdb, cfg.TokenListMaxAge)
	}
	fetcher := catalog.NewFetcher(catalog.FetcherOptions{
		BaseURL:         cfg.TokenAPIURL,
		Store:           catalog.NewStore(),
		Cache:           cache,
		Chains:          network,
		MinOccurrences:  cfg.MinOccurrences,
		RefreshInterval: cfg.TokenListRefresh,
		CacheThreshold:  cfg.TokenListMaxAge,
		Logger:          logger,
	})

	detector := detection.New(detection.Options{
		Accounts:    accounts,
		Network:     network,
		Preferences: preferences,
		Session:     keyring,
		Tokens:      tokenCtl,
		Catalog:     fetcher.Store(),
		Oracle:      oracle,
		Telemetry:   sinks,
		Gate:        gate,
		Interval:    cfg.Interval,
		BatchSize:   cfg.BatchSize,
		Logger:      logger,
	})

	server := control.NewServer(control.Deps{
		Accounts:    accounts,
		Network:     network,
		Preferences: preferences,
		Keyring:     keyring,
		Tokens:      tokenCtl,
		Detector:    detector,
		Gate:        gate,
		Hub:         hub,
		Logger:      logger,
	})

	watcher := sources.NewChainWatcher(sources.ChainWatcherOptions{
		Reader:   primary,
		Network:  network,
		Interval: cfg.ChainPollInterval,
		Logger:   logger,
	})

	detector.Start(ctx)
	defer detector.Stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(fetcher.Run(gCtx)) })
	g.Go(func() error { return ignoreCanceled(watcher.Run(gCtx)) })
	g.Go(func() error { return server.Run(gCtx, cfg.ListenAddr) })

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
