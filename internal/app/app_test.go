package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMinimal(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "server"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Positions)
	assert.NotNil(t, deps.Feed)
	assert.NotNil(t, deps.Delta)
	assert.NotNil(t, deps.Notifier)
	assert.NotNil(t, deps.Metrics)
	assert.Nil(t, deps.Telegram)
	assert.Nil(t, deps.Predictor)
	assert.Nil(t, deps.Publisher)
	assert.Nil(t, deps.AuditStore)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Health)
}

func TestWireRequiresDeltaSecretForEngine(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "engine"

	_, _, err := Wire(context.Background(), &cfg, testLogger())
	assert.ErrorContains(t, err, "delta secret")
}

func TestWireOptionalBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.Mode = "full"
	cfg.Delta.ApiKey = "key"
	cfg.Delta.ApiSecret = "secret"
	cfg.Telegram.Token = "TOKEN"
	cfg.Telegram.OperatorChatID = 42
	cfg.Predictor.URL = "http://localhost:8001"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Telegram)
	assert.NotNil(t, deps.Predictor)
	assert.NotNil(t, deps.PriceCache)
	assert.NotNil(t, deps.RateLimiter)
	assert.NotNil(t, deps.LockManager)
	assert.NotNil(t, deps.SignalBus)
	assert.Contains(t, deps.Health, "redis")
	assert.IsType(t, &events.RedisPublisher{}, deps.Publisher)
}

func TestWireRedisAndKafkaFanOut(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.Mode = "server"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Kafka.Enabled = true

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	multi, ok := deps.Publisher.(events.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "backtest"

	a := New(&cfg, testLogger())
	defer a.Close()
	assert.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}
