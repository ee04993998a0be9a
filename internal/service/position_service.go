// Package service implements the user-facing operations on monitored
// positions shared by the Telegram bot and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// DefaultManualCooldown spaces out manual hedges of the same position.
const DefaultManualCooldown = 10 * time.Second

// Config holds the service tunables.
type Config struct {
	ContractSize   float64
	DisplayHistory int
	ManualCooldown time.Duration
}

// PositionService manages monitored positions: starting and stopping
// monitoring, threshold and auto-hedge changes, manual hedges and analytics.
type PositionService struct {
	positions domain.PositionStore
	feed      domain.PriceFeed
	resolver  domain.ProductResolver
	placer    domain.OrderPlacer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	// optional
	predictor domain.Predictor
	limiter   domain.RateLimiter
	publisher domain.EventPublisher
	audit     domain.AuditStore

	// in-process cooldown used when no limiter is attached
	cooldownMu sync.Mutex
	lastHedge  map[domain.PositionKey]time.Time
}

// NewPositionService creates a PositionService with its required
// collaborators. Optional ones are attached with the Set methods.
func NewPositionService(
	positions domain.PositionStore,
	feed domain.PriceFeed,
	resolver domain.ProductResolver,
	placer domain.OrderPlacer,
	cfg Config,
	logger *slog.Logger,
) *PositionService {
	if cfg.ManualCooldown <= 0 {
		cfg.ManualCooldown = DefaultManualCooldown
	}
	if cfg.DisplayHistory <= 0 {
		cfg.DisplayHistory = 5
	}
	return &PositionService{
		positions: positions,
		feed:      feed,
		resolver:  resolver,
		placer:    placer,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "position_service")),
		now:       time.Now,
		lastHedge: make(map[domain.PositionKey]time.Time),
	}
}

// SetPredictor attaches the price forecaster.
func (s *PositionService) SetPredictor(p domain.Predictor) { s.predictor = p }

// SetRateLimiter attaches a distributed limiter for the manual hedge cooldown.
func (s *PositionService) SetRateLimiter(l domain.RateLimiter) { s.limiter = l }

// SetPublisher attaches the event publisher.
func (s *PositionService) SetPublisher(p domain.EventPublisher) { s.publisher = p }

// SetAuditStore attaches the audit log.
func (s *PositionService) SetAuditStore(a domain.AuditStore) { s.audit = a }

// StartMonitoring fetches the current spot price as the entry price and
// creates or replaces the position.
func (s *PositionService) StartMonitoring(ctx context.Context, userID int64, asset string, size, threshold float64) (domain.Position, error) {
	asset = domain.NormalizeAsset(asset)
	if asset == "" || !(size > 0) || math.IsInf(size, 0) {
		return domain.Position{}, fmt.Errorf("service: monitor %q size %v: %w", asset, size, domain.ErrInvalidPosition)
	}
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return domain.Position{}, fmt.Errorf("service: monitor %s threshold %v: %w", asset, threshold, domain.ErrInvalidThreshold)
	}

	price, err := s.spotPrice(ctx, asset)
	if err != nil {
		return domain.Position{}, err
	}

	pos, err := s.positions.Upsert(ctx, userID, asset, price, size, threshold)
	if err != nil {
		return domain.Position{}, fmt.Errorf("service: monitor %s: %w", asset, err)
	}

	s.logger.InfoContext(ctx, "monitoring started",
		slog.Int64("user_id", userID),
		slog.String("asset", asset),
		slog.Float64("entry_price", price),
		slog.Float64("size", size),
		slog.Float64("threshold", threshold),
	)
	s.changed(ctx, pos.Key(), domain.AuditPositionMonitored, "monitoring started", map[string]any{
		"entry_price": price, "size": size, "threshold": threshold,
	})
	return pos, nil
}

// StopMonitoring removes one position.
func (s *PositionService) StopMonitoring(ctx context.Context, userID int64, asset string) error {
	key := domain.NewPositionKey(userID, asset)
	if err := s.positions.Remove(ctx, key.UserID, key.Asset); err != nil {
		return fmt.Errorf("service: stop %s: %w", key, err)
	}
	s.changed(ctx, key, domain.AuditPositionRemoved, "monitoring stopped", nil)
	return nil
}

// StopAll removes every position of the user and returns how many there were.
func (s *PositionService) StopAll(ctx context.Context, userID int64) (int, error) {
	assets, err := s.positions.ListAssets(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: stop all %d: %w", userID, err)
	}
	n, err := s.positions.RemoveAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: stop all %d: %w", userID, err)
	}
	for _, a := range assets {
		s.changed(ctx, domain.NewPositionKey(userID, a), domain.AuditPositionRemoved, "monitoring stopped", nil)
	}
	return n, nil
}

// SetAutoHedge toggles automatic hedging of one position.
func (s *PositionService) SetAutoHedge(ctx context.Context, userID int64, asset string, enabled bool) error {
	key := domain.NewPositionKey(userID, asset)
	if err := s.positions.SetAutoHedge(ctx, key.UserID, key.Asset, enabled); err != nil {
		return fmt.Errorf("service: auto-hedge %s: %w", key, err)
	}
	s.changed(ctx, key, domain.AuditAutoHedgeToggled, autoHedgeMessage(enabled), map[string]any{"enabled": enabled})
	return nil
}

// SetAutoHedgeAll toggles automatic hedging for every position of the user.
// It returns domain.ErrNotFound when the user monitors nothing.
func (s *PositionService) SetAutoHedgeAll(ctx context.Context, userID int64, enabled bool) (int, error) {
	assets, err := s.positions.ListAssets(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: auto-hedge all %d: %w", userID, err)
	}
	if len(assets) == 0 {
		return 0, fmt.Errorf("service: auto-hedge all %d: %w", userID, domain.ErrNotFound)
	}

	n := 0
	for _, a := range assets {
		err := s.SetAutoHedge(ctx, userID, a, enabled)
		if errors.Is(err, domain.ErrNotFound) {
			continue // stopped concurrently
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// UpdateThreshold changes the risk threshold and returns the recorded change.
func (s *PositionService) UpdateThreshold(ctx context.Context, userID int64, asset string, threshold float64) (domain.ThresholdChange, error) {
	key := domain.NewPositionKey(userID, asset)
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return domain.ThresholdChange{}, fmt.Errorf("service: threshold %s %v: %w", key, threshold, domain.ErrInvalidThreshold)
	}
	change, err := s.positions.UpdateThreshold(ctx, key.UserID, key.Asset, threshold)
	if err != nil {
		return domain.ThresholdChange{}, fmt.Errorf("service: threshold %s: %w", key, err)
	}
	s.changed(ctx, key, domain.AuditThresholdUpdated, "threshold updated", map[string]any{
		"old_threshold": change.OldThreshold, "new_threshold": change.NewThreshold,
	})
	return change, nil
}

// Get returns one position.
func (s *PositionService) Get(ctx context.Context, userID int64, asset string) (domain.Position, error) {
	key := domain.NewPositionKey(userID, asset)
	pos, err := s.positions.Get(ctx, key.UserID, key.Asset)
	if err != nil {
		return domain.Position{}, fmt.Errorf("service: get %s: %w", key, err)
	}
	return pos, nil
}

// List returns every position of the user ordered by asset.
func (s *PositionService) List(ctx context.Context, userID int64) ([]domain.Position, error) {
	assets, err := s.positions.ListAssets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: list %d: %w", userID, err)
	}
	out := make([]domain.Position, 0, len(assets))
	for _, a := range assets {
		pos, err := s.positions.Get(ctx, userID, a)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service: list %d: %w", userID, err)
		}
		out = append(out, pos)
	}
	return out, nil
}

// ManualHedge is the outcome of HedgeNow.
type ManualHedge struct {
	Entry     domain.HedgeLogEntry `json:"entry"`
	Price     float64              `json:"price"`
	ProductID string               `json:"product_id"`
}

// HedgeNow places a sell order of size for a monitored position at the
// current spot price. Repeated calls for the same position within the
// cooldown fail with domain.ErrRateLimited.
func (s *PositionService) HedgeNow(ctx context.Context, userID int64, asset string, size float64) (ManualHedge, error) {
	key := domain.NewPositionKey(userID, asset)
	if !(size > 0) || math.IsInf(size, 0) {
		return ManualHedge{}, fmt.Errorf("service: hedge %s size %v: %w", key, size, domain.ErrInvalidPosition)
	}
	if _, err := s.positions.Get(ctx, key.UserID, key.Asset); err != nil {
		return ManualHedge{}, fmt.Errorf("service: hedge %s: %w", key, err)
	}
	if err := s.cooldown(ctx, key); err != nil {
		return ManualHedge{}, err
	}

	productID, err := s.resolver.ResolveProductID(ctx, key.Asset)
	if err != nil {
		return ManualHedge{}, fmt.Errorf("service: hedge %s: %w", key, errors.Join(domain.ErrNoProductID, err))
	}
	price, err := s.spotPrice(ctx, key.Asset)
	if err != nil {
		return ManualHedge{}, err
	}

	res, err := s.placer.PlaceHedgeOrder(ctx, domain.HedgeOrderRequest{
		ProductID:  productID,
		Asset:      key.Asset,
		Side:       domain.OrderSideSell,
		Size:       size,
		LimitPrice: price,
	})
	if err != nil {
		return ManualHedge{}, fmt.Errorf("service: hedge %s: %w", key, err)
	}
	if !res.Success {
		s.auditLog(ctx, domain.AuditHedgeFailed, key, map[string]any{
			"manual": true, "reason": res.Message, "size": size, "price": price,
		})
		return ManualHedge{}, fmt.Errorf("service: hedge %s: %s: %w", key, res.Message, domain.ErrOrderRejected)
	}

	entry := domain.HedgeLogEntry{
		Time:    s.now(),
		OrderID: res.OrderID,
		Side:    domain.OrderSideSell,
		Size:    size,
		Status:  res.Status,
	}
	if entry.OrderID == "" {
		entry.OrderID = "N/A"
	}
	if entry.Status == "" {
		entry.Status = domain.OrderStatusPending
	}
	if err := s.positions.AppendHedgeLog(ctx, key.UserID, key.Asset, entry); err != nil {
		// The order is live even if the position was stopped meanwhile.
		s.logger.WarnContext(ctx, "record manual hedge failed",
			slog.String("position", key.String()),
			slog.String("order_id", entry.OrderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "manual hedge placed",
		slog.String("position", key.String()),
		slog.String("order_id", entry.OrderID),
		slog.Float64("size", size),
		slog.Float64("price", price),
	)
	s.auditLog(ctx, domain.AuditManualHedge, key, map[string]any{
		"order_id": entry.OrderID, "size": size, "price": price,
		"status": string(entry.Status), "product_id": productID,
	})
	s.publish(ctx, domain.RiskEvent{
		Type: domain.EventHedgeExecuted, UserID: key.UserID, Asset: key.Asset,
		Price: price, OrderID: entry.OrderID, Status: string(entry.Status),
		Message: "manual hedge",
	})
	return ManualHedge{Entry: entry, Price: price, ProductID: productID}, nil
}

// HedgeHistory returns the hedges of a position placed within the last
// since; since <= 0 returns all of them.
func (s *PositionService) HedgeHistory(ctx context.Context, userID int64, asset string, since time.Duration) ([]domain.HedgeLogEntry, error) {
	pos, err := s.Get(ctx, userID, asset)
	if err != nil {
		return nil, err
	}
	if since <= 0 {
		return pos.HedgeLogs, nil
	}
	cutoff := s.now().Add(-since)
	out := make([]domain.HedgeLogEntry, 0, len(pos.HedgeLogs))
	for _, h := range pos.HedgeLogs {
		if !h.Time.Before(cutoff) {
			out = append(out, h)
		}
	}
	return out, nil
}

// Predict returns the forecast for asset.
func (s *PositionService) Predict(ctx context.Context, asset string) (domain.Prediction, error) {
	if s.predictor == nil {
		return domain.Prediction{}, fmt.Errorf("service: predict: no predictor configured: %w", domain.ErrNotFound)
	}
	p, err := s.predictor.Predict(ctx, asset)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("service: predict %s: %w", asset, err)
	}
	return p, nil
}

func (s *PositionService) spotPrice(ctx context.Context, asset string) (float64, error) {
	price, err := s.feed.SpotPrice(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("service: price %s: %w", asset, errors.Join(domain.ErrPriceUnavailable, err))
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("service: price %s: %v: %w", asset, price, domain.ErrPriceUnavailable)
	}
	return price, nil
}

func (s *PositionService) cooldown(ctx context.Context, key domain.PositionKey) error {
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "hedge_now:"+key.String(), 1, s.cfg.ManualCooldown)
		if err == nil {
			if !ok {
				return fmt.Errorf("service: hedge %s: %w", key, domain.ErrRateLimited)
			}
			return nil
		}
		s.logger.WarnContext(ctx, "rate limiter unavailable, using local cooldown",
			slog.String("error", err.Error()),
		)
	}

	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	now := s.now()
	if last, ok := s.lastHedge[key]; ok && now.Sub(last) < s.cfg.ManualCooldown {
		return fmt.Errorf("service: hedge %s: %w", key, domain.ErrRateLimited)
	}
	s.lastHedge[key] = now
	return nil
}

// changed records a successful mutation in the audit log and on the
// positions channel.
func (s *PositionService) changed(ctx context.Context, key domain.PositionKey, auditEvent, msg string, detail map[string]any) {
	s.auditLog(ctx, auditEvent, key, detail)
	s.publish(ctx, domain.RiskEvent{
		Type: domain.EventPositionChanged, UserID: key.UserID, Asset: key.Asset, Message: msg,
	})
}

func (s *PositionService) auditLog(ctx context.Context, event string, key domain.PositionKey, detail map[string]any) {
	if s.audit == nil {
		return
	}
	d := map[string]any{"user_id": key.UserID, "asset": key.Asset}
	for k, v := range detail {
		d[k] = v
	}
	if err := s.audit.Log(ctx, event, d); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) publish(ctx context.Context, evt domain.RiskEvent) {
	if s.publisher == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.Time = s.now()
	if err := s.publisher.PublishRiskEvent(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func autoHedgeMessage(enabled bool) string {
	if enabled {
		return "auto-hedge enabled"
	}
	return "auto-hedge disabled"
}
