// Package config defines the top-level configuration for the hedge bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGEBOT_* environment variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Bybit     BybitConfig     `toml:"bybit"`
	Delta     DeltaConfig     `toml:"delta"`
	Hedge     HedgeConfig     `toml:"hedge"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Notify    NotifyConfig    `toml:"notify"`
	Predictor PredictorConfig `toml:"predictor"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig controls the periodic risk evaluation loop.
type EngineConfig struct {
	// Interval is the pause between two full evaluation passes.
	Interval          duration `toml:"interval"`
	PriceHistoryLimit int      `toml:"price_history_limit"`
	DisplayHistory    int      `toml:"display_history"`
	// EvalLockTTL bounds how long a distributed evaluation lock may be held.
	EvalLockTTL duration `toml:"eval_lock_ttl"`
	// ContractSize is used to size the recommended perpetual hedge.
	ContractSize float64 `toml:"contract_size"`
}

// BybitConfig holds the spot price feed endpoint.
type BybitConfig struct {
	BaseURL    string   `toml:"base_url"`
	QuoteAsset string   `toml:"quote_asset"`
	Timeout    duration `toml:"timeout"`
}

// DeltaConfig holds Delta Exchange API credentials and order parameters.
type DeltaConfig struct {
	BaseURL             string            `toml:"base_url"`
	ApiKey              string            `toml:"api_key"`
	ApiSecret           string            `toml:"api_secret"`
	EncryptedSecretPath string            `toml:"encrypted_secret_path"`
	SecretPassword      string            `toml:"secret_password"`
	SymbolSuffix        string            `toml:"symbol_suffix"`
	SymbolMap           map[string]string `toml:"symbol_map"`
	ProductCacheTTL     duration          `toml:"product_cache_ttl"`
	OrderType           string            `toml:"order_type"`
	TimeInForce         string            `toml:"time_in_force"`
	Timeout             duration          `toml:"timeout"`
}

// HedgeConfig holds parameters for manually requested hedges.
type HedgeConfig struct {
	ManualCooldown duration `toml:"manual_cooldown"`
}

// TelegramConfig holds the bot credentials used for command intake and
// per-user notifications.
type TelegramConfig struct {
	// Enabled runs the command poller. The token is needed for
	// notifications either way.
	Enabled      bool     `toml:"enabled"`
	Token        string   `toml:"token"`
	APIBase      string   `toml:"api_base"`
	PollTimeout  int      `toml:"poll_timeout"`
	ErrorBackoff duration `toml:"error_backoff"`
	// OperatorChatID receives operator broadcasts. Optional.
	OperatorChatID int64 `toml:"operator_chat_id"`
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// PredictorConfig holds the price prediction service endpoint.
type PredictorConfig struct {
	URL     string   `toml:"url"`
	Timeout duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the audit log.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// PriceTTL is how long a cached spot price stays readable.
	PriceTTL duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	SnapshotInterval duration `toml:"snapshot_interval"`
}

// KafkaConfig holds the risk event stream parameters.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
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
	ApiKey      string   `toml:"api_key"`
	// RateLimit is the per-client request budget per RateWindow. Applied
	// only when Redis is enabled; 0 disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// MinPriceHistory is the smallest price_history_limit that still leaves
// enough samples for the 95% VaR estimate.
const MinPriceHistory = 30

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Interval:          duration{60 * time.Second},
			PriceHistoryLimit: 500,
			DisplayHistory:    5,
			EvalLockTTL:       duration{30 * time.Second},
			ContractSize:      0.001,
		},
		Bybit: BybitConfig{
			BaseURL:    "https://api.bybit.com",
			QuoteAsset: "USDT",
			Timeout:    duration{10 * time.Second},
		},
		Delta: DeltaConfig{
			BaseURL:         "https://api.delta.exchange",
			SymbolSuffix:    "USD",
			SymbolMap:       map[string]string{},
			ProductCacheTTL: duration{10 * time.Minute},
			OrderType:       "limit_order",
			TimeInForce:     "gtc",
			Timeout:         duration{15 * time.Second},
		},
		Hedge: HedgeConfig{
			ManualCooldown: duration{10 * time.Second},
		},
		Telegram: TelegramConfig{
			Enabled:      true,
			APIBase:      "https://api.telegram.org",
			PollTimeout:  30,
			ErrorBackoff: duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"risk_alert", "hedge_executed", "hedge_failed"},
		},
		Predictor: PredictorConfig{
			Timeout: duration{20 * time.Second},
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
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "hedgebot-data",
			ForcePathStyle:   true,
			SnapshotInterval: duration{time.Hour},
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "hedgebot.risk-events",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"engine": true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsEngine reports whether the configured mode runs the evaluation loop.
func (c *Config) RunsEngine() bool {
	m := strings.ToLower(c.Mode)
	return m == "full" || m == "engine"
}

// RunsServer reports whether the configured mode serves the HTTP API.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return c.Server.Enabled && (m == "full" || m == "server")
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.PriceHistoryLimit < MinPriceHistory {
		errs = append(errs, fmt.Sprintf("engine: price_history_limit must be >= %d, got %d", MinPriceHistory, c.Engine.PriceHistoryLimit))
	}
	if c.Engine.DisplayHistory < 1 {
		errs = append(errs, "engine: display_history must be >= 1")
	}
	if c.Engine.ContractSize <= 0 {
		errs = append(errs, "engine: contract_size must be > 0")
	}

	// Exchanges
	if c.Bybit.BaseURL == "" {
		errs = append(errs, "bybit: base_url must not be empty")
	}
	if c.Delta.BaseURL == "" {
		errs = append(errs, "delta: base_url must not be empty")
	}
	if c.RunsEngine() {
		if c.Delta.ApiKey == "" {
			errs = append(errs, "delta: api_key is required for mode "+c.Mode)
		}
		if c.Delta.ApiSecret == "" && c.Delta.EncryptedSecretPath == "" {
			errs = append(errs, "delta: either api_secret or encrypted_secret_path must be set for mode "+c.Mode)
		}
	}
	if c.Delta.EncryptedSecretPath != "" && c.Delta.SecretPassword == "" {
		errs = append(errs, "delta: secret_password is required when encrypted_secret_path is set")
	}

	// Telegram
	// The engine reports to users only through Telegram.
	if c.RunsEngine() && c.Telegram.Token == "" {
		errs = append(errs, "telegram: token is required for mode "+c.Mode)
	}
	if c.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram: poll_timeout must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.SnapshotInterval.Duration <= 0 {
			errs = append(errs, "s3: snapshot_interval must be > 0")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: at least one broker is required")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
