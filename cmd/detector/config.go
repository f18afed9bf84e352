package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"token-detector/internal/catalog"
	"token-detector/internal/detection"
)

// Config is the merged detector configuration.
type Config struct {
	ListenAddr string `validate:"required"`
	LogLevel   string `validate:"oneof=trace debug info warn error"`
	LogFormat  string `validate:"oneof=console json"`

	RPCEndpoint     string            `validate:"required,url"`
	ChainRPC        map[string]string `validate:"omitempty,dive,keys,startswith=0x,hexadecimal,endkeys,url"`
	BalanceCheckers map[string]string `validate:"omitempty,dive,keys,startswith=0x,hexadecimal,endkeys,eth_addr"`

	Account           string `validate:"omitempty,eth_addr"`
	UseTokenDetection bool
	StartUnlocked     bool
	Headless          bool // treat the UI as always open

	Interval          time.Duration `validate:"gt=0"`
	BatchSize         int           `validate:"min=1,max=1000"`
	ChainPollInterval time.Duration `validate:"gt=0"`

	TokenAPIURL      string        `validate:"required,url"`
	TokenListRefresh time.Duration `validate:"gt=0"`
	TokenListMaxAge  time.Duration `validate:"gt=0"`
	MinOccurrences   int           `validate:"min=1"`
	RedisAddr        string        `validate:"omitempty,hostname_port"`

	Store            string `validate:"oneof=memory postgres"`
	PostgresDSN      string `validate:"required_if=Store postgres"`
	PostgresMaxConns int    `validate:"min=1"`
	ClickHouseDSN    string
	NATSURL          string `validate:"omitempty,url"`
	NATSSubject      string `validate:"required"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":8080",
		LogLevel:          "info",
		LogFormat:         "console",
		UseTokenDetection: true,
		Interval:          detection.DefaultInterval,
		BatchSize:         detection.MaxBatchSize,
		ChainPollInterval: 15 * time.Second,
		TokenAPIURL:       catalog.DefaultTokenAPIURL,
		TokenListRefresh:  4 * time.Hour,
		TokenListMaxAge:   24 * time.Hour,
		MinOccurrences:    3,
		Store:             "memory",
		PostgresMaxConns:  10,
		NATSSubject:       "token-detector.events",
	}
}

// fileConfig mirrors Config in the TOML file. Durations are strings.
type fileConfig struct {
	ListenAddr        string            `toml:"listen_addr"`
	LogLevel          string            `toml:"log_level"`
	LogFormat         string            `toml:"log_format"`
	RPCEndpoint       string            `toml:"rpc_endpoint"`
	ChainRPC          map[string]string `toml:"chain_rpc"`
	BalanceCheckers   map[string]string `toml:"balance_checkers"`
	Account           string            `toml:"account"`
	UseTokenDetection bool              `toml:"use_token_detection"`
	StartUnlocked     bool              `toml:"start_unlocked"`
	Headless          bool              `toml:"headless"`
	Interval          string            `toml:"interval"`
	BatchSize         int               `toml:"batch_size"`
	ChainPollInterval string            `toml:"chain_poll_interval"`
	TokenAPIURL       string            `toml:"token_api_url"`
	TokenListRefresh  string            `toml:"token_list_refresh"`
	TokenListMaxAge   string            `toml:"token_list_max_age"`
	MinOccurrences    int               `toml:"min_occurrences"`
	RedisAddr         string            `toml:"redis_addr"`
	Store             string            `toml:"store"`
	PostgresDSN       string            `toml:"postgres_dsn"`
	PostgresMaxConns  int               `toml:"postgres_max_conns"`
	ClickHouseDSN     string            `toml:"clickhouse_dsn"`
	NATSURL           string            `toml:"nats_url"`
	NATSSubject       string            `toml:"nats_subject"`
}

// applyFile overlays the keys defined in the TOML file at path.
func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown keys %v", path, undecoded)
	}

	str := func(key, v string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key, v string, dst *time.Duration) error {
		if !meta.IsDefined(key) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("listen_addr", raw.ListenAddr, &cfg.ListenAddr)
	str("log_level", raw.LogLevel, &cfg.LogLevel)
	str("log_format", raw.LogFormat, &cfg.LogFormat)
	str("rpc_endpoint", raw.RPCEndpoint, &cfg.RPCEndpoint)
	str("account", raw.Account, &cfg.Account)
	str("token_api_url", raw.TokenAPIURL, &cfg.TokenAPIURL)
	str("redis_addr", raw.RedisAddr, &cfg.RedisAddr)
	str("store", raw.Store, &cfg.Store)
	str("postgres_dsn", raw.PostgresDSN, &cfg.PostgresDSN)
	str("clickhouse_dsn", raw.ClickHouseDSN, &cfg.ClickHouseDSN)
	str("nats_url", raw.NATSURL, &cfg.NATSURL)
	str("nats_subject", raw.NATSSubject, &cfg.NATSSubject)

	if meta.IsDefined("chain_rpc") {
		cfg.ChainRPC = raw.ChainRPC
	}
	if meta.IsDefined("balance_checkers") {
		cfg.BalanceCheckers = raw.BalanceCheckers
	}
	if meta.IsDefined("use_token_detection") {
		cfg.UseTokenDetection = raw.UseTokenDetection
	}
	if meta.IsDefined("start_unlocked") {
		cfg.StartUnlocked = raw.StartUnlocked
	}
	if meta.IsDefined("headless") {
		cfg.Headless = raw.Headless
	}
	if meta.IsDefined("batch_size") {
		cfg.BatchSize = raw.BatchSize
	}
	if meta.IsDefined("min_occurrences") {
		cfg.MinOccurrences = raw.MinOccurrences
	}
	if meta.IsDefined("postgres_max_conns") {
		cfg.PostgresMaxConns = raw.PostgresMaxConns
	}

	for _, d := range []struct {
		key string
		v   string
		dst *time.Duration
	}{
		{"interval", raw.Interval, &cfg.Interval},
		{"chain_poll_interval", raw.ChainPollInterval, &cfg.ChainPollInterval},
		{"token_list_refresh", raw.TokenListRefresh, &cfg.TokenListRefresh},
		{"token_list_max_age", raw.TokenListMaxAge, &cfg.TokenListMaxAge},
	} {
		if err := dur(d.key, d.v, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// chainMapFlag parses "0x89=https://...,0xa=https://..." into a map.
type chainMapFlag map[string]string

func (m *chainMapFlag) String() string {
	parts := make([]string, 0, len(*m))
	for k, v := range *m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m *chainMapFlag) Set(s string) error {
	if *m == nil {
		*m = make(chainMapFlag)
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			return fmt.Errorf("expected chain=value, got %q", part)
		}
		(*m)[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return nil
}

// loadConfig merges defaults, the optional --config file and explicitly set flags, then validates.
func loadConfig(args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet("detector", flag.ContinueOnError)
	fs.SetOutput(output)

	fl := defaultConfig()
	var chainRPC, checkers chainMapFlag

	configPath := fs.String("config", "", "Path to TOML config file")
	fs.StringVar(&fl.ListenAddr, "listen-addr", fl.ListenAddr, "Control API listen address")
	fs.StringVar(&fl.LogLevel, "log-level", fl.LogLevel, "Log level: trace, debug, info, warn, error")
	fs.StringVar(&fl.LogFormat, "log-format", fl.LogFormat, "Log format: console or json")
	fs.StringVar(&fl.RPCEndpoint, "rpc-endpoint", fl.RPCEndpoint, "JSON-RPC endpoint of the selected network")
	fs.Var(&chainRPC, "chain-rpc", "Extra JSON-RPC endpoints as chainId=url, comma-separated")
	fs.Var(&checkers, "balance-checker", "Balance checker contract overrides as chainId=address, comma-separated")
	fs.StringVar(&fl.Account, "account", fl.Account, "Initially selected account address")
	fs.BoolVar(&fl.UseTokenDetection, "use-token-detection", fl.UseTokenDetection, "Scan the full token list (false: static mainnet list only)")
	fs.BoolVar(&fl.StartUnlocked, "start-unlocked", fl.StartUnlocked, "Start with the session unlocked")
	fs.BoolVar(&fl.Headless, "headless", fl.Headless, "Treat the UI as open without WebSocket sessions")
	fs.DurationVar(&fl.Interval, "interval", fl.Interval, "Detection polling interval")
	fs.IntVar(&fl.BatchSize, "batch-size", fl.BatchSize, "Tokens per balance oracle call (max 1000)")
	fs.DurationVar(&fl.ChainPollInterval, "chain-poll-interval", fl.ChainPollInterval, "eth_chainId polling interval")
	fs.StringVar(&fl.TokenAPIURL, "token-api-url", fl.TokenAPIURL, "Token list service base URL")
	fs.DurationVar(&fl.TokenListRefresh, "token-list-refresh", fl.TokenListRefresh, "Token list refresh interval")
	fs.DurationVar(&fl.TokenListMaxAge, "token-list-max-age", fl.TokenListMaxAge, "Age after which a cached token list is refetched")
	fs.IntVar(&fl.MinOccurrences, "min-occurrences", fl.MinOccurrences, "Minimum upstream lists a token must appear in")
	fs.StringVar(&fl.RedisAddr, "redis-addr", fl.RedisAddr, "Redis address for the token list cache (empty: in-memory)")
	fs.StringVar(&fl.Store, "store", fl.Store, "Token store backend: memory or postgres")
	fs.StringVar(&fl.PostgresDSN, "postgres-dsn", fl.PostgresDSN, "PostgreSQL connection string")
	fs.IntVar(&fl.PostgresMaxConns, "postgres-max-conns", fl.PostgresMaxConns, "Maximum PostgreSQL pool connections")
	fs.StringVar(&fl.ClickHouseDSN, "clickhouse-dsn", fl.ClickHouseDSN, "ClickHouse DSN for telemetry events (empty to disable)")
	fs.StringVar(&fl.NATSURL, "nats-url", fl.NATSURL, "NATS URL for telemetry events (empty to disable)")
	fs.StringVar(&fl.NATSSubject, "nats-subject", fl.NATSSubject, "NATS subject for telemetry events")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		if err := applyFile(&cfg, *configPath); err != nil {
			return Config{}, err
		}
	}

	// Explicitly set flags win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen-addr":
			cfg.ListenAddr = fl.ListenAddr
		case "log-level":
			cfg.LogLevel = fl.LogLevel
		case "log-format":
			cfg.LogFormat = fl.LogFormat
		case "rpc-endpoint":
			cfg.RPCEndpoint = fl.RPCEndpoint
		case "chain-rpc":
			cfg.ChainRPC = chainRPC
		case "balance-checker":
			cfg.BalanceCheckers = checkers
		case "account":
			cfg.Account = fl.Account
		case "use-token-detection":
			cfg.UseTokenDetection = fl.UseTokenDetection
		case "start-unlocked":
			cfg.StartUnlocked = fl.StartUnlocked
		case "headless":
			cfg.Headless = fl.Headless
		case "interval":
			cfg.Interval = fl.Interval
		case "batch-size":
			cfg.BatchSize = fl.BatchSize
		case "chain-poll-interval":
			cfg.ChainPollInterval = fl.ChainPollInterval
		case "token-api-url":
			cfg.TokenAPIURL = fl.TokenAPIURL
		case "token-list-refresh":
			cfg.TokenListRefresh = fl.TokenListRefresh
		case "token-list-max-age":
			cfg.TokenListMaxAge = fl.TokenListMaxAge
		case "min-occurrences":
			cfg.MinOccurrences = fl.MinOccurrences
		case "redis-addr":
			cfg.RedisAddr = fl.RedisAddr
		case "store":
			cfg.Store = fl.Store
		case "postgres-dsn":
			cfg.PostgresDSN = fl.PostgresDSN
		case "postgres-max-conns":
			cfg.PostgresMaxConns = fl.PostgresMaxConns
		case "clickhouse-dsn":
			cfg.ClickHouseDSN = fl.ClickHouseDSN
		case "nats-url":
			cfg.NATSURL = fl.NATSURL
		case "nats-subject":
			cfg.NATSSubject = fl.NATSSubject
		}
	})

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
