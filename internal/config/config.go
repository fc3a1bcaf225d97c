// Package config defines the top-level configuration for polytrader and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYTRADER_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Runner     RunnerConfig     `toml:"runner"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	FunderAddress    string `toml:"funder_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters and
// optional pre-issued L2 credentials. Without credentials they are derived
// from the wallet at startup.
type PolymarketConfig struct {
	ClobHost       string   `toml:"clob_host"`
	GammaHost      string   `toml:"gamma_host"`
	WsHost         string   `toml:"ws_host"`
	ChainID        int      `toml:"chain_id"`
	SignatureType  int      `toml:"signature_type"`
	FeeRateBps     int      `toml:"fee_rate_bps"`
	RequestTimeout duration `toml:"request_timeout"`
	ApiKey         string   `toml:"api_key"`
	ApiSecret      string   `toml:"api_secret"`
	ApiPassphrase  string   `toml:"api_passphrase"`
}

// PostgresConfig holds the action journal and audit log database.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and the limits enforced
// through it.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`

	// ExchangeRateLimit calls per ExchangeRateWindow, shared by every
	// process using the same prefix.
	ExchangeRateLimit  int      `toml:"exchange_rate_limit"`
	ExchangeRateWindow duration `toml:"exchange_rate_window"`
	BBOTTL             duration `toml:"bbo_ttl"`
}

// S3Config holds S3-compatible object storage parameters for run archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RunnerConfig holds tick pacing, failure backoff and the single-runner
// lease.
type RunnerConfig struct {
	TickInterval         duration `toml:"tick_interval"`
	BackoffAfterFailures int      `toml:"backoff_after_failures"`
	BackoffIterations    int      `toml:"backoff_iterations"`
	LeaseTTL             duration `toml:"lease_ttl"`
	JournalLimit         int      `toml:"journal_limit"`
}

// StrategyConfig holds trading strategy parameters. Prices and sizes are in
// shares and USDC; they are scaled to 1/1000 units when the brain is built.
type StrategyConfig struct {
	Name        string `toml:"name"`
	ConditionID string `toml:"condition_id"`
	// MainAssetID and CounterAssetID skip the Gamma lookup when both are set.
	MainAssetID    string         `toml:"main_asset_id"`
	CounterAssetID string         `toml:"counter_asset_id"`
	Size           float64        `toml:"size"`
	PlaceRequire   int            `toml:"place_require"`
	CancelRequire  int            `toml:"cancel_require"`
	MaxDrift       float64        `toml:"max_drift"`
	Params         map[string]any `toml:"params"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	DedupTTL          duration `toml:"dedup_ttl"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:       "https://clob.polymarket.com",
			GammaHost:      "https://gamma-api.polymarket.com",
			WsHost:         "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:        137,
			SignatureType:  0,
			RequestTimeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:               "localhost:6379",
			PoolSize:           20,
			MaxRetries:         3,
			KeyPrefix:          "polytrader",
			ExchangeRateLimit:  10,
			ExchangeRateWindow: duration{time.Second},
			BBOTTL:             duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polytrader-runs",
			ForcePathStyle: true,
		},
		Runner: RunnerConfig{
			TickInterval:         duration{time.Second},
			BackoffAfterFailures: 3,
			BackoffIterations:    10,
			LeaseTTL:             duration{15 * time.Second},
			JournalLimit:         50_000,
		},
		Strategy: StrategyConfig{
			Name:          "quote",
			Size:          5.0,
			PlaceRequire:  3,
			CancelRequire: 2,
			MaxDrift:      0.01,
			Params:        map[string]any{},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   20,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events:   []string{"backoff", "execution_failed", "lock_change", "lifecycle"},
			DedupTTL: duration{time.Minute},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is only needed to sign real orders.
	if strings.EqualFold(c.Mode, "trade") {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.SignatureType != 0 && c.Wallet.FunderAddress == "" && strings.EqualFold(c.Mode, "trade") {
		errs = append(errs, "wallet: funder_address is required for proxy and Safe signature types")
	}
	// L2 credentials are all set together, or all derived.
	ak := c.Polymarket.ApiKey != ""
	as := c.Polymarket.ApiSecret != ""
	ap := c.Polymarket.ApiPassphrase != ""
	if (ak || as || ap) && !(ak && as && ap) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.ExchangeRateLimit < 0 {
			errs = append(errs, "redis: exchange_rate_limit must be >= 0")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Runner.TickInterval.Duration <= 0 {
		errs = append(errs, "runner: tick_interval must be > 0")
	}
	if c.Runner.BackoffAfterFailures < 0 {
		errs = append(errs, "runner: backoff_after_failures must be >= 0")
	}
	if c.Runner.BackoffAfterFailures > 0 && c.Runner.BackoffIterations < 1 {
		errs = append(errs, "runner: backoff_iterations must be >= 1 when backoff is enabled")
	}
	if c.Redis.Enabled && c.Runner.LeaseTTL.Duration < time.Second {
		errs = append(errs, "runner: lease_ttl must be at least 1s")
	}

	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if c.Strategy.ConditionID == "" {
		errs = append(errs, "strategy: condition_id must not be empty")
	}
	if (c.Strategy.MainAssetID == "") != (c.Strategy.CounterAssetID == "") {
		errs = append(errs, "strategy: main_asset_id and counter_asset_id must be set together")
	}
	if c.Strategy.Size <= 0 {
		errs = append(errs, "strategy: size must be > 0")
	}
	if c.Strategy.PlaceRequire < 0 || c.Strategy.CancelRequire < 0 {
		errs = append(errs, "strategy: place_require and cancel_require must be >= 0")
	}
	if c.Strategy.MaxDrift < 0 || c.Strategy.MaxDrift >= 1 {
		errs = append(errs, "strategy: max_drift must be in [0, 1)")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
