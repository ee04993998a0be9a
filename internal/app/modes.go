package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/command"
	"github.com/alanyoungcy/hedgebot/internal/engine"
	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
	"github.com/alanyoungcy/hedgebot/internal/service"
	"github.com/alanyoungcy/hedgebot/internal/telegram"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// FullMode runs the evaluation loop, the Telegram bot, the snapshot archiver
// and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	svc := a.newPositionService(deps)
	a.startEngine(ctx, g, deps)
	a.startTelegram(ctx, g, deps, svc)
	a.startArchiver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}
	return wait(g)
}

// EngineMode runs the evaluation loop and the Telegram bot without the HTTP
// API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")
	g, ctx := errgroup.WithContext(ctx)

	svc := a.newPositionService(deps)
	a.startEngine(ctx, g, deps)
	a.startTelegram(ctx, g, deps, svc)
	a.startArchiver(ctx, g, deps)
	return wait(g)
}

// ServerMode serves the HTTP API only. Positions created here are not
// evaluated.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps, a.newPositionService(deps))
	return wait(g)
}

// wait treats cancellation as a clean shutdown.
func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) newPositionService(deps *Dependencies) *service.PositionService {
	svc := service.NewPositionService(deps.Positions, deps.Feed, deps.Delta, deps.Delta, service.Config{
		ContractSize:   a.cfg.Engine.ContractSize,
		DisplayHistory: a.cfg.Engine.DisplayHistory,
		ManualCooldown: a.cfg.Hedge.ManualCooldown.Duration,
	}, a.logger)
	if deps.Predictor != nil {
		svc.SetPredictor(deps.Predictor)
	}
	if deps.RateLimiter != nil {
		svc.SetRateLimiter(deps.RateLimiter)
	}
	if deps.Publisher != nil {
		svc.SetPublisher(deps.Publisher)
	}
	if deps.AuditStore != nil {
		svc.SetAuditStore(deps.AuditStore)
	}
	return svc
}

func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	eng := engine.NewEngine(deps.Positions, deps.Feed, deps.Delta, deps.Delta, deps.Notifier, engine.Config{
		ContractSize: a.cfg.Engine.ContractSize,
		EvalLockTTL:  a.cfg.Engine.EvalLockTTL.Duration,
	}, a.logger)
	eng.SetMetrics(deps.Metrics)
	if deps.Publisher != nil {
		eng.SetPublisher(deps.Publisher)
	}
	if deps.AuditStore != nil {
		eng.SetAuditStore(deps.AuditStore)
	}
	if deps.PriceCache != nil {
		eng.SetPriceCache(deps.PriceCache)
	}
	if deps.LockManager != nil {
		eng.SetLockManager(deps.LockManager)
	}

	sched := engine.NewScheduler(eng, a.cfg.Engine.Interval.Duration, a.logger)
	g.Go(func() error {
		return sched.Run(ctx)
	})
}

func (a *App) startTelegram(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.PositionService) {
	if !a.cfg.Telegram.Enabled || deps.Telegram == nil {
		a.logger.InfoContext(ctx, "telegram bot disabled")
		return
	}
	poller := telegram.NewPoller(telegram.Config{
		APIBase:      a.cfg.Telegram.APIBase,
		Token:        a.cfg.Telegram.Token,
		PollTimeout:  a.cfg.Telegram.PollTimeout,
		ErrorBackoff: a.cfg.Telegram.ErrorBackoff.Duration,
	}, command.NewDispatcher(svc, a.logger), deps.Telegram, a.logger)
	g.Go(func() error {
		return poller.Run(ctx)
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		return deps.Archiver.Run(ctx, a.cfg.S3.SnapshotInterval.Duration)
	})
}

// startHTTPServer adds the HTTP server and, when Redis is wired, the
// WebSocket hub to g. The server shuts down gracefully on cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.PositionService) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Engine.Interval.Duration, a.startedAt, deps.Positions, a.logger),
		Positions: handler.NewPositionHandler(svc, a.logger),
		Metrics:   promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}
	if deps.PriceCache != nil {
		handlers.Prices = handler.NewPriceHandler(deps.PriceCache, a.logger)
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventHandler(deps.SignalBus, a.logger)
		hub = ws.NewHub(deps.SignalBus, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt}, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("http shutdown incomplete", slog.String("error", err.Error()))
		}
		return nil
	})
}
