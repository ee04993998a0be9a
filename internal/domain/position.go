package domain

import (
	"fmt"
	"strings"
	"time"
)

// PositionKey identifies a monitored position: one asset per user.
type PositionKey struct {
	UserID int64
	Asset  string
}

// NewPositionKey normalizes the asset symbol to upper case.
func NewPositionKey(userID int64, asset string) PositionKey {
	return PositionKey{UserID: userID, Asset: NormalizeAsset(asset)}
}

// String renders the key as "<user>:<asset>".
func (k PositionKey) String() string {
	return fmt.Sprintf("%d:%s", k.UserID, k.Asset)
}

// NormalizeAsset trims and upper-cases an asset symbol.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// PriceSample is a single observed spot price.
type PriceSample struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// ThresholdChange records one risk threshold update.
type ThresholdChange struct {
	Time         time.Time `json:"time"`
	OldThreshold float64   `json:"old_threshold"`
	NewThreshold float64   `json:"new_threshold"`
}

// HedgeLogEntry records an executed hedge order. Entries are never modified
// after they are appended.
type HedgeLogEntry struct {
	Time    time.Time   `json:"time"`
	OrderID string      `json:"order_id"`
	Side    OrderSide   `json:"side"`
	Size    float64     `json:"size"`
	Status  OrderStatus `json:"status"`
}

// AutoHedgeTrigger records that the engine entered the hedging path.
type AutoHedgeTrigger struct {
	Time      time.Time `json:"time"`
	Triggered bool      `json:"triggered"`
}

// Position is the monitored state of one asset for one user.
type Position struct {
	UserID        int64   `json:"user_id"`
	Asset         string  `json:"asset"`
	EntryPrice    float64 `json:"entry_price"`
	PositionSize  float64 `json:"position_size"`
	RiskThreshold float64 `json:"risk_threshold"` // percent drop from entry
	AutoHedge     bool    `json:"auto_hedge"`

	PriceHistory     []PriceSample      `json:"price_history"`
	ThresholdHistory []ThresholdChange  `json:"threshold_history"`
	HedgeLogs        []HedgeLogEntry    `json:"hedge_logs"`
	AutoHedgeHistory []AutoHedgeTrigger `json:"auto_hedge_history"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns the position's store key.
func (p Position) Key() PositionKey {
	return PositionKey{UserID: p.UserID, Asset: p.Asset}
}

// Prices returns the price history as a plain series, oldest first.
func (p Position) Prices() []float64 {
	out := make([]float64, len(p.PriceHistory))
	for i, s := range p.PriceHistory {
		out[i] = s.Price
	}
	return out
}

// LastPrices returns at most n of the most recent samples.
func (p Position) LastPrices(n int) []PriceSample {
	if n <= 0 || len(p.PriceHistory) == 0 {
		return nil
	}
	start := len(p.PriceHistory) - n
	if start < 0 {
		start = 0
	}
	out := make([]PriceSample, len(p.PriceHistory)-start)
	copy(out, p.PriceHistory[start:])
	return out
}

// LatestPrice returns the most recent sample, if any.
func (p Position) LatestPrice() (PriceSample, bool) {
	if len(p.PriceHistory) == 0 {
		return PriceSample{}, false
	}
	return p.PriceHistory[len(p.PriceHistory)-1], true
}

// Clone returns a deep copy so callers can never alias stored history.
func (p Position) Clone() Position {
	out := p
	out.PriceHistory = append([]PriceSample(nil), p.PriceHistory...)
	out.ThresholdHistory = append([]ThresholdChange(nil), p.ThresholdHistory...)
	out.HedgeLogs = append([]HedgeLogEntry(nil), p.HedgeLogs...)
	out.AutoHedgeHistory = append([]AutoHedgeTrigger(nil), p.AutoHedgeHistory...)
	return out
}
