package domain

import (
	"context"
	"time"
)

// RiskEventType names what happened to a position.
type RiskEventType string

const (
	EventNoRisk           RiskEventType = "no_risk"
	EventRiskAlert        RiskEventType = "risk_alert"
	EventHedgeExecuted    RiskEventType = "hedge_executed"
	EventHedgeFailed      RiskEventType = "hedge_failed"
	EventInvalidThreshold RiskEventType = "invalid_threshold"
	EventPositionChanged  RiskEventType = "position_changed"
)

// Channel names used on the signal bus.
const (
	ChannelRiskEvents = "risk_events"
	ChannelPositions  = "positions"
)

// RiskEvent is published after every decision the engine makes and after
// every position mutation from the command layer.
type RiskEvent struct {
	ID          string        `json:"id"`
	Type        RiskEventType `json:"type"`
	UserID      int64         `json:"user_id"`
	Asset       string        `json:"asset"`
	Price       float64       `json:"price,omitempty"`
	DropPercent float64       `json:"drop_percent,omitempty"`
	Threshold   float64       `json:"threshold,omitempty"`
	OrderID     string        `json:"order_id,omitempty"`
	Status      string        `json:"status,omitempty"`
	Message     string        `json:"message,omitempty"`
	Time        time.Time     `json:"time"`
}

// EventPublisher fans risk events out to downstream consumers.
type EventPublisher interface {
	PublishRiskEvent(ctx context.Context, evt RiskEvent) error
}
