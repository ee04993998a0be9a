package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries. Zero values
// disable the corresponding filter.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	UserID int64
	Asset  string
	Event  string
}

// PositionStore holds monitored positions. Every operation on a single key is
// linearizable; operations on different keys never block each other.
type PositionStore interface {
	// Upsert creates or fully replaces the record, resetting all histories
	// and disabling auto-hedge.
	Upsert(ctx context.Context, userID int64, asset string, entryPrice, size, threshold float64) (Position, error)
	Get(ctx context.Context, userID int64, asset string) (Position, error)
	ListAssets(ctx context.Context, userID int64) ([]string, error)
	ListUsers(ctx context.Context) ([]int64, error)
	Remove(ctx context.Context, userID int64, asset string) error
	RemoveAll(ctx context.Context, userID int64) (int, error)
	SetAutoHedge(ctx context.Context, userID int64, asset string, enabled bool) error
	// UpdateThreshold appends to the threshold history before mutating.
	UpdateThreshold(ctx context.Context, userID int64, asset string, threshold float64) (ThresholdChange, error)
	// AppendPriceSample returns the record as it stands right after the append.
	AppendPriceSample(ctx context.Context, userID int64, asset string, sample PriceSample) (Position, error)
	AppendHedgeLog(ctx context.Context, userID int64, asset string, entry HedgeLogEntry) error
	AppendAutoHedgeTrigger(ctx context.Context, userID int64, asset string, trigger AutoHedgeTrigger) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	UserID    int64          `json:"user_id,omitempty"`
	Asset     string         `json:"asset,omitempty"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log. "user_id" and "asset" keys
// of detail are indexed for filtering.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Audit event names.
const (
	AuditPositionMonitored = "position_monitored"
	AuditPositionRemoved   = "position_removed"
	AuditThresholdUpdated  = "threshold_updated"
	AuditAutoHedgeToggled  = "auto_hedge_toggled"
	AuditHedgeExecuted     = "hedge_executed"
	AuditHedgeFailed       = "hedge_failed"
	AuditManualHedge       = "manual_hedge"
	AuditSnapshotArchived  = "snapshot_archived"
)
