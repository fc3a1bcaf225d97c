package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYTRADER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.New("config: unknown keys: " + strings.Join(keys, ", "))
		}
	}

	// A missing .env file is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYTRADER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.FunderAddress, "POLYTRADER_WALLET_FUNDER_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYTRADER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYTRADER_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYTRADER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYTRADER_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYTRADER_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYTRADER_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYTRADER_POLYMARKET_SIGNATURE_TYPE")
	setInt(&cfg.Polymarket.FeeRateBps, "POLYTRADER_POLYMARKET_FEE_RATE_BPS")
	setDuration(&cfg.Polymarket.RequestTimeout, "POLYTRADER_POLYMARKET_REQUEST_TIMEOUT")
	setStr(&cfg.Polymarket.ApiKey, "POLYTRADER_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLYTRADER_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLYTRADER_POLYMARKET_API_PASSPHRASE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYTRADER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POLYTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYTRADER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYTRADER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYTRADER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYTRADER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYTRADER_REDIS_KEY_PREFIX")
	setInt(&cfg.Redis.ExchangeRateLimit, "POLYTRADER_REDIS_EXCHANGE_RATE_LIMIT")
	setDuration(&cfg.Redis.ExchangeRateWindow, "POLYTRADER_REDIS_EXCHANGE_RATE_WINDOW")
	setDuration(&cfg.Redis.BBOTTL, "POLYTRADER_REDIS_BBO_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYTRADER_S3_FORCE_PATH_STYLE")

	// ── Runner ──
	setDuration(&cfg.Runner.TickInterval, "POLYTRADER_RUNNER_TICK_INTERVAL")
	setInt(&cfg.Runner.BackoffAfterFailures, "POLYTRADER_RUNNER_BACKOFF_AFTER_FAILURES")
	setInt(&cfg.Runner.BackoffIterations, "POLYTRADER_RUNNER_BACKOFF_ITERATIONS")
	setDuration(&cfg.Runner.LeaseTTL, "POLYTRADER_RUNNER_LEASE_TTL")
	setInt(&cfg.Runner.JournalLimit, "POLYTRADER_RUNNER_JOURNAL_LIMIT")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "POLYTRADER_STRATEGY_NAME")
	setStr(&cfg.Strategy.ConditionID, "POLYTRADER_STRATEGY_CONDITION_ID")
	setStr(&cfg.Strategy.MainAssetID, "POLYTRADER_STRATEGY_MAIN_ASSET_ID")
	setStr(&cfg.Strategy.CounterAssetID, "POLYTRADER_STRATEGY_COUNTER_ASSET_ID")
	setFloat64(&cfg.Strategy.Size, "POLYTRADER_STRATEGY_SIZE")
	setInt(&cfg.Strategy.PlaceRequire, "POLYTRADER_STRATEGY_PLACE_REQUIRE")
	setInt(&cfg.Strategy.CancelRequire, "POLYTRADER_STRATEGY_CANCEL_REQUIRE")
	setFloat64(&cfg.Strategy.MaxDrift, "POLYTRADER_STRATEGY_MAX_DRIFT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYTRADER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYTRADER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYTRADER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYTRADER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POLYTRADER_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYTRADER_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.DedupTTL, "POLYTRADER_NOTIFY_DEDUP_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYTRADER_MODE")
	setStr(&cfg.LogLevel, "POLYTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
