// Package server exposes position management, prices, events and metrics
// over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/middleware"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers. Health, Status and Positions are
// required; the rest are registered only when set.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
	Prices    *handler.PriceHandler
	Audit     *handler.AuditHandler
	Events    *handler.EventHandler
	Metrics   http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// publicPaths skip authentication and rate limiting.
var publicPaths = []string{"/api/health", "/metrics"}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/users/{user}/positions", h.Positions.ListPositions)
	mux.HandleFunc("POST /api/users/{user}/positions", h.Positions.StartMonitoring)
	mux.HandleFunc("DELETE /api/users/{user}/positions", h.Positions.StopAll)
	mux.HandleFunc("GET /api/users/{user}/positions/{asset}", h.Positions.GetPosition)
	mux.HandleFunc("DELETE /api/users/{user}/positions/{asset}", h.Positions.StopMonitoring)
	mux.HandleFunc("PUT /api/users/{user}/positions/{asset}/threshold", h.Positions.UpdateThreshold)
	mux.HandleFunc("PUT /api/users/{user}/positions/{asset}/auto-hedge", h.Positions.SetAutoHedge)
	mux.HandleFunc("POST /api/users/{user}/positions/{asset}/hedge", h.Positions.Hedge)
	mux.HandleFunc("GET /api/users/{user}/positions/{asset}/hedges", h.Positions.ListHedges)
	mux.HandleFunc("GET /api/users/{user}/analytics", h.Positions.GetAnalytics)

	if h.Prices != nil {
		mux.HandleFunc("GET /api/prices", h.Prices.ListPrices)
		mux.HandleFunc("GET /api/prices/{asset}", h.Prices.GetPrice)
	}
	if h.Audit != nil {
		mux.HandleFunc("GET /api/audit", h.Audit.ListAudit)
	}
	if h.Events != nil {
		mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Innermost first: rate limit, auth, logging, CORS.
	var root http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger, publicPaths...)(root)
	}
	root = middleware.Auth(cfg.APIKey, publicPaths...)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
