// Package engine runs the periodic risk evaluation of monitored positions and
// decides, per position, whether to stay quiet, alert the user, or place an
// offsetting hedge order.
package engine

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
	"github.com/alanyoungcy/hedgebot/internal/risk"
)

// Outcome is the result of evaluating one position once.
type Outcome string

const (
	OutcomeNoRisk             Outcome = "no_risk"
	OutcomeAlerted            Outcome = "alerted"
	OutcomeHedged             Outcome = "hedged"
	OutcomeHedgeFailed        Outcome = "hedge_failed"
	OutcomeSkipped            Outcome = "skipped" // no price this tick
	OutcomeBusy               Outcome = "busy"    // another evaluation holds the key
	OutcomeGone               Outcome = "gone"    // removed while being evaluated
	OutcomeInvalidThreshold   Outcome = "invalid_threshold"
	OutcomeInvariantViolation Outcome = "invariant_violation"
)

// Decision is what a breach check asks the engine to do.
type Decision int

const (
	DecisionNoRisk Decision = iota
	DecisionAlert
	DecisionHedge
)

// Decide applies the breach rule: a drop equal to the threshold is a breach.
func Decide(dropPercent, threshold float64, autoHedge bool) Decision {
	if dropPercent < threshold {
		return DecisionNoRisk
	}
	if autoHedge {
		return DecisionHedge
	}
	return DecisionAlert
}

// Config holds the engine's tunables.
type Config struct {
	// ContractSize sizes the suggested perpetual hedge in alerts.
	ContractSize float64
	// EvalLockTTL bounds the distributed per-key evaluation lock.
	EvalLockTTL time.Duration
}

// TickSummary reports what one evaluation pass did.
type TickSummary struct {
	Users     int
	Evaluated int
	Outcomes  map[Outcome]int
	Aborted   bool
	Duration  time.Duration
}

// Engine evaluates positions against their thresholds.
type Engine struct {
	store    domain.PositionStore
	feed     domain.PriceFeed
	resolver domain.ProductResolver
	placer   domain.OrderPlacer
	notifier domain.UserNotifier

	publisher domain.EventPublisher
	audit     domain.AuditStore
	prices    domain.PriceCache
	locks     domain.LockManager
	metrics   *Metrics

	cfg      Config
	inflight keyGuard
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine with its required collaborators. Optional sinks
// are attached with the Set* methods before Run.
func NewEngine(
	store domain.PositionStore,
	feed domain.PriceFeed,
	resolver domain.ProductResolver,
	placer domain.OrderPlacer,
	notifier domain.UserNotifier,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.EvalLockTTL <= 0 {
		cfg.EvalLockTTL = 30 * time.Second
	}
	return &Engine{
		store:    store,
		feed:     feed,
		resolver: resolver,
		placer:   placer,
		notifier: notifier,
		cfg:      cfg,
		inflight: keyGuard{held: make(map[domain.PositionKey]struct{})},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "risk_engine")),
	}
}

// SetPublisher attaches a risk event publisher.
func (e *Engine) SetPublisher(p domain.EventPublisher) { e.publisher = p }

// SetAuditStore attaches the audit log for hedge outcomes.
func (e *Engine) SetAuditStore(a domain.AuditStore) { e.audit = a }

// SetPriceCache attaches a cache that receives every fetched spot price.
func (e *Engine) SetPriceCache(c domain.PriceCache) { e.prices = c }

// SetLockManager attaches a distributed lock so replicas never evaluate the
// same key concurrently.
func (e *Engine) SetLockManager(l domain.LockManager) { e.locks = l }

// SetMetrics attaches Prometheus collectors.
func (e *Engine) SetMetrics(m *Metrics) { e.metrics = m }

// Tick evaluates every position of every user once, sequentially and in a
// stable order. A failure on one position never stops the pass; only context
// cancellation does.
func (e *Engine) Tick(ctx context.Context) TickSummary {
	start := time.Now()
	sum := TickSummary{Outcomes: make(map[Outcome]int)}
	defer func() {
		sum.Duration = time.Since(start)
		e.metrics.observeTick(sum.Duration, sum.Evaluated)
	}()

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "list users failed", slog.String("error", err.Error()))
		return sum
	}
	sum.Users = len(users)

	for _, userID := range users {
		assets, err := e.store.ListAssets(ctx, userID)
		if err != nil {
			e.logger.ErrorContext(ctx, "list assets failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, asset := range assets {
			if ctx.Err() != nil {
				sum.Aborted = true
				return sum
			}
			outcome := e.evaluateIsolated(ctx, userID, asset)
			sum.Outcomes[outcome]++
			sum.Evaluated++
		}
	}

	e.logger.DebugContext(ctx, "evaluation pass complete",
		slog.Int("users", sum.Users),
		slog.Int("evaluated", sum.Evaluated),
		slog.Int("hedged", sum.Outcomes[OutcomeHedged]),
		slog.Int("alerted", sum.Outcomes[OutcomeAlerted]),
	)
	return sum
}

// evaluateIsolated runs one evaluation and converts a panic into an
// invariant violation for that key only.
func (e *Engine) evaluateIsolated(ctx context.Context, userID int64, asset string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "evaluation panicked",
				slog.Int64("user_id", userID),
				slog.String("asset", asset),
				slog.Any("panic", r),
			)
			outcome = OutcomeInvariantViolation
			e.metrics.observeOutcome(outcome)
		}
	}()
	outcome, _ = e.EvaluatePosition(ctx, userID, asset)
	return outcome
}

// EvaluatePosition fetches the current price of one position, records it and
// acts on the breach decision. The returned error describes why an
// evaluation did not reach a decision; it never needs to be retried by the
// caller, the next tick does that.
func (e *Engine) EvaluatePosition(ctx context.Context, userID int64, asset string) (Outcome, error) {
	outcome, err := e.evaluate(ctx, domain.NewPositionKey(userID, asset))
	e.metrics.observeOutcome(outcome)
	return outcome, err
}

func (e *Engine) evaluate(ctx context.Context, key domain.PositionKey) (Outcome, error) {
	log := e.logger.With(slog.Int64("user_id", key.UserID), slog.String("asset", key.Asset))

	if !e.inflight.tryAcquire(key) {
		return OutcomeBusy, nil
	}
	defer e.inflight.release(key)

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "eval:"+key.String(), e.cfg.EvalLockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			return OutcomeBusy, nil
		case err != nil:
			log.WarnContext(ctx, "evaluation lock unavailable, continuing without it", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	// FETCHING
	price, err := e.feed.SpotPrice(ctx, key.Asset)
	if err == nil && (math.IsNaN(price) || math.IsInf(price, 0) || price <= 0) {
		err = fmt.Errorf("non-positive price %v", price)
	}
	if err != nil {
		e.metrics.priceFetchFailed(key.Asset)
		log.WarnContext(ctx, "could not fetch price", slog.String("error", err.Error()))
		return OutcomeSkipped, fmt.Errorf("engine: fetch %s: %w: %v", key, domain.ErrPriceUnavailable, err)
	}

	pos, err := e.store.AppendPriceSample(ctx, key.UserID, key.Asset, domain.PriceSample{Time: e.now(), Price: price})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return OutcomeGone, nil
		}
		log.ErrorContext(ctx, "append price sample failed", slog.String("error", err.Error()))
		return OutcomeSkipped, fmt.Errorf("engine: append price %s: %w", key, err)
	}
	e.cachePrice(ctx, key.Asset, price)

	// EVALUATING
	if !(pos.RiskThreshold > 0) {
		title, body := invalidThresholdMessage(key.Asset, pos.RiskThreshold)
		e.notify(ctx, key.UserID, string(domain.EventInvalidThreshold), title, body)
		e.publish(ctx, domain.RiskEvent{
			Type: domain.EventInvalidThreshold, UserID: key.UserID, Asset: key.Asset,
			Price: price, Threshold: pos.RiskThreshold,
		})
		return OutcomeInvalidThreshold, fmt.Errorf("engine: %s: %w", key, domain.ErrInvalidThreshold)
	}

	report, err := risk.Snapshot(pos, price, e.cfg.ContractSize)
	if err != nil {
		log.ErrorContext(ctx, "position invariant violated", slog.String("error", err.Error()))
		if !errors.Is(err, domain.ErrInvariantViolation) {
			err = fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
		}
		return OutcomeInvariantViolation, fmt.Errorf("engine: %s: %w", key, err)
	}

	switch Decide(report.DropPercent, pos.RiskThreshold, pos.AutoHedge) {
	case DecisionHedge:
		return e.hedge(ctx, pos, report, log), nil
	case DecisionAlert:
		title, body := alertMessage(key.Asset, report)
		e.notify(ctx, key.UserID, string(domain.EventRiskAlert), title, body)
		e.publish(ctx, domain.RiskEvent{
			Type: domain.EventRiskAlert, UserID: key.UserID, Asset: key.Asset,
			Price: price, DropPercent: report.DropPercent, Threshold: pos.RiskThreshold,
		})
		log.InfoContext(ctx, "risk threshold breached",
			slog.Float64("drop_percent", report.DropPercent),
			slog.Float64("threshold", pos.RiskThreshold),
		)
		return OutcomeAlerted, nil
	default:
		title, body := noRiskMessage(key.Asset, report)
		e.notify(ctx, key.UserID, string(domain.EventNoRisk), title, body)
		e.publish(ctx, domain.RiskEvent{
			Type: domain.EventNoRisk, UserID: key.UserID, Asset: key.Asset,
			Price: price, DropPercent: report.DropPercent, Threshold: pos.RiskThreshold,
		})
		return OutcomeNoRisk, nil
	}
}

// hedge runs the HEDGING path: record the trigger, resolve the product,
// place one sell order for the full position, and report the result. A
// failed order is reported once and not retried within the tick.
func (e *Engine) hedge(ctx context.Context, pos domain.Position, report risk.Report, log *slog.Logger) Outcome {
	key := pos.Key()
	if err := e.store.AppendAutoHedgeTrigger(ctx, key.UserID, key.Asset, domain.AutoHedgeTrigger{Time: e.now(), Triggered: true}); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return OutcomeGone
		}
		log.ErrorContext(ctx, "record auto-hedge trigger failed", slog.String("error", err.Error()))
	}

	fail := func(result, reason string) Outcome {
		e.metrics.hedgeOrder(result)
		title, body := hedgeFailedMessage(key.Asset, reason)
		e.notify(ctx, key.UserID, string(domain.EventHedgeFailed), title, body)
		e.publish(ctx, domain.RiskEvent{
			Type: domain.EventHedgeFailed, UserID: key.UserID, Asset: key.Asset,
			Price: report.CurrentPrice, DropPercent: report.DropPercent, Threshold: pos.RiskThreshold,
			Message: reason,
		})
		e.auditLog(ctx, domain.AuditHedgeFailed, map[string]any{
			"user_id": key.UserID, "asset": key.Asset, "reason": reason,
			"price": report.CurrentPrice, "size": pos.PositionSize,
		})
		return OutcomeHedgeFailed
	}

	productID, err := e.resolver.ResolveProductID(ctx, key.Asset)
	if err != nil || productID == "" {
		reason := "auto-hedge failed: no product id"
		if err != nil {
			log.WarnContext(ctx, "product lookup failed", slog.String("error", err.Error()))
		}
		return fail("no_product", reason)
	}

	res, err := e.placer.PlaceHedgeOrder(ctx, domain.HedgeOrderRequest{
		ProductID:  productID,
		Asset:      key.Asset,
		Side:       domain.OrderSideSell,
		Size:       pos.PositionSize,
		LimitPrice: report.CurrentPrice,
	})
	if err != nil {
		log.ErrorContext(ctx, "hedge order request failed", slog.String("error", err.Error()))
		return fail("rejected", "order request failed: "+err.Error())
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "unknown error"
		}
		log.WarnContext(ctx, "hedge order rejected", slog.String("reason", msg))
		return fail("rejected", "order rejected: "+msg)
	}

	entry := domain.HedgeLogEntry{
		Time:    e.now(),
		OrderID: res.OrderID,
		Side:    res.Side,
		Size:    res.Size,
		Status:  res.Status,
	}
	if entry.Side == "" {
		entry.Side = domain.OrderSideSell
	}
	if entry.Size == 0 {
		entry.Size = pos.PositionSize
	}
	if err := e.store.AppendHedgeLog(ctx, key.UserID, key.Asset, entry); err != nil {
		// The order is live on the exchange; the user still hears about it.
		log.ErrorContext(ctx, "record hedge log failed",
			slog.String("order_id", entry.OrderID),
			slog.String("error", err.Error()),
		)
	}

	e.metrics.hedgeOrder("placed")
	title, body := hedgeExecutedMessage(key.Asset, res, entry)
	e.notify(ctx, key.UserID, string(domain.EventHedgeExecuted), title, body)
	e.publish(ctx, domain.RiskEvent{
		Type: domain.EventHedgeExecuted, UserID: key.UserID, Asset: key.Asset,
		Price: report.CurrentPrice, DropPercent: report.DropPercent, Threshold: pos.RiskThreshold,
		OrderID: entry.OrderID, Status: string(entry.Status),
	})
	e.auditLog(ctx, domain.AuditHedgeExecuted, map[string]any{
		"user_id": key.UserID, "asset": key.Asset, "order_id": entry.OrderID,
		"side": string(entry.Side), "size": entry.Size, "status": string(entry.Status),
		"price": report.CurrentPrice, "product_id": productID,
	})
	log.InfoContext(ctx, "auto-hedge executed",
		slog.String("order_id", entry.OrderID),
		slog.Float64("size", entry.Size),
		slog.Float64("price", report.CurrentPrice),
	)
	return OutcomeHedged
}

func (e *Engine) notify(ctx context.Context, userID int64, event, title, body string) {
	if err := e.notifier.NotifyUser(ctx, userID, event, title, body); err != nil {
		e.metrics.notifyFailed()
		e.logger.WarnContext(ctx, "notification failed",
			slog.Int64("user_id", userID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, evt domain.RiskEvent) {
	if e.publisher == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.Time = e.now()
	if err := e.publisher.PublishRiskEvent(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "publish risk event failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) cachePrice(ctx context.Context, asset string, price float64) {
	if e.prices == nil {
		return
	}
	if err := e.prices.SetPrice(ctx, asset, price, e.now()); err != nil {
		e.logger.DebugContext(ctx, "cache price failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
	}
}

// keyGuard is an in-process try-lock per position key.
type keyGuard struct {
	mu   sync.Mutex
	held map[domain.PositionKey]struct{}
}

func (g *keyGuard) tryAcquire(k domain.PositionKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[k]; ok {
		return false
	}
	g.held[k] = struct{}{}
	return true
}

func (g *keyGuard) release(k domain.PositionKey) {
	g.mu.Lock()
	delete(g.held, k)
	g.mu.Unlock()
}
