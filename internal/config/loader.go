package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HEDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "HEDGEBOT_ENGINE_INTERVAL")
	setInt(&cfg.Engine.PriceHistoryLimit, "HEDGEBOT_ENGINE_PRICE_HISTORY_LIMIT")
	setInt(&cfg.Engine.DisplayHistory, "HEDGEBOT_ENGINE_DISPLAY_HISTORY")
	setDuration(&cfg.Engine.EvalLockTTL, "HEDGEBOT_ENGINE_EVAL_LOCK_TTL")
	setFloat64(&cfg.Engine.ContractSize, "HEDGEBOT_ENGINE_CONTRACT_SIZE")

	// ── Bybit ──
	setStr(&cfg.Bybit.BaseURL, "HEDGEBOT_BYBIT_BASE_URL")
	setStr(&cfg.Bybit.QuoteAsset, "HEDGEBOT_BYBIT_QUOTE_ASSET")

	// ── Delta ──
	setStr(&cfg.Delta.BaseURL, "HEDGEBOT_DELTA_BASE_URL")
	setStr(&cfg.Delta.ApiKey, "HEDGEBOT_DELTA_API_KEY")
	setStr(&cfg.Delta.ApiSecret, "HEDGEBOT_DELTA_API_SECRET")
	setStr(&cfg.Delta.EncryptedSecretPath, "HEDGEBOT_DELTA_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Delta.SecretPassword, "HEDGEBOT_DELTA_SECRET_PASSWORD")
	setStr(&cfg.Delta.SymbolSuffix, "HEDGEBOT_DELTA_SYMBOL_SUFFIX")
	setDuration(&cfg.Delta.ProductCacheTTL, "HEDGEBOT_DELTA_PRODUCT_CACHE_TTL")

	// ── Hedge ──
	setDuration(&cfg.Hedge.ManualCooldown, "HEDGEBOT_HEDGE_MANUAL_COOLDOWN")

	// ── Telegram ──
	setBool(&cfg.Telegram.Enabled, "HEDGEBOT_TELEGRAM_ENABLED")
	setStr(&cfg.Telegram.Token, "HEDGEBOT_TELEGRAM_TOKEN")
	setStr(&cfg.Telegram.APIBase, "HEDGEBOT_TELEGRAM_API_BASE")
	setInt(&cfg.Telegram.PollTimeout, "HEDGEBOT_TELEGRAM_POLL_TIMEOUT")
	setInt64(&cfg.Telegram.OperatorChatID, "HEDGEBOT_TELEGRAM_OPERATOR_CHAT_ID")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")

	// ── Predictor ──
	setStr(&cfg.Predictor.URL, "HEDGEBOT_PREDICTOR_URL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HEDGEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HEDGEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "HEDGEBOT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HEDGEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HEDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HEDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HEDGEBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.SnapshotInterval, "HEDGEBOT_S3_SNAPSHOT_INTERVAL")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "HEDGEBOT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "HEDGEBOT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "HEDGEBOT_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "HEDGEBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "HEDGEBOT_SERVER_RATE_LIMIT")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGEBOT_MODE")
	setStr(&cfg.LogLevel, "HEDGEBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
