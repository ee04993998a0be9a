package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/cache/redis"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/engine"
	"github.com/alanyoungcy/hedgebot/internal/events"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/platform/bybit"
	"github.com/alanyoungcy/hedgebot/internal/platform/delta"
	"github.com/alanyoungcy/hedgebot/internal/platform/predictor"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
	"github.com/alanyoungcy/hedgebot/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. Optional
// sinks are nil when their section is disabled. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Core
	Positions *memory.PositionStore
	Feed      *bybit.Client
	Delta     *delta.Client
	Predictor domain.Predictor
	Notifier  *notify.Notifier
	Telegram  *notify.TelegramSender

	// Persistence
	AuditStore domain.AuditStore

	// Redis
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   *redis.SignalBus

	// Sinks
	Publisher domain.EventPublisher
	Archiver  *s3blob.SnapshotArchiver

	// Metrics
	Registry *prometheus.Registry
	Metrics  *engine.Metrics

	// Health lists the pingable backends for /api/health.
	Health map[string]handler.Pinger
}

// Wire constructs every concrete dependency from cfg and returns them with a
// cleanup function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Positions: memory.NewPositionStore(cfg.Engine.PriceHistoryLimit),
		Health:    make(map[string]handler.Pinger),
	}

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = engine.NewMetrics(deps.Registry)

	// --- Exchanges ---
	deps.Feed = bybit.NewClient(cfg.Bybit.BaseURL, cfg.Bybit.QuoteAsset, cfg.Bybit.Timeout.Duration)

	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           cfg.Delta.ApiSecret,
		EncryptedPath: cfg.Delta.EncryptedSecretPath,
		Password:      cfg.Delta.SecretPassword,
	})
	if err != nil {
		if cfg.RunsEngine() {
			return fail(fmt.Errorf("wire: delta secret: %w", err))
		}
		logger.WarnContext(ctx, "delta secret unavailable; hedge orders will be rejected",
			slog.String("error", err.Error()),
		)
	}
	deps.Delta = delta.NewClient(delta.Config{
		BaseURL:         cfg.Delta.BaseURL,
		APIKey:          cfg.Delta.ApiKey,
		APISecret:       secret,
		SymbolSuffix:    cfg.Delta.SymbolSuffix,
		SymbolMap:       cfg.Delta.SymbolMap,
		ProductCacheTTL: cfg.Delta.ProductCacheTTL.Duration,
		OrderType:       cfg.Delta.OrderType,
		TimeInForce:     cfg.Delta.TimeInForce,
		Timeout:         cfg.Delta.Timeout.Duration,
	})

	if cfg.Predictor.URL != "" {
		deps.Predictor = predictor.NewClient(cfg.Predictor.URL, cfg.Predictor.Timeout.Duration)
	}

	// --- Notifications ---
	var (
		userSender notify.Sender
		operators  []notify.Sender
	)
	if cfg.Telegram.Token != "" {
		deps.Telegram = notify.NewTelegramSender(cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.OperatorChatID)
		userSender = deps.Telegram
		if cfg.Telegram.OperatorChatID != 0 {
			operators = append(operators, deps.Telegram.OperatorChat())
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		operators = append(operators, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(userSender, operators, cfg.Notify.Events, logger)

	// --- PostgreSQL audit log ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Health["postgres"] = pgClient
	}

	// --- Redis ---
	var publishers events.Multi
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient
		publishers = append(publishers, events.NewRedisPublisher(deps.SignalBus))
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka writer close failed", slog.String("error", err.Error()))
			}
		})
		publishers = append(publishers, kp)
	}
	switch len(publishers) {
	case 0:
	case 1:
		deps.Publisher = publishers[0]
	default:
		deps.Publisher = publishers
	}

	// --- S3 snapshot archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewSnapshotArchiver(s3blob.NewWriter(s3Client), deps.Positions, deps.AuditStore, logger)
		deps.Health["s3"] = s3Client
	}

	return deps, cleanup, nil
}
