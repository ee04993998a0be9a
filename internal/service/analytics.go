package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/risk"
)

// AssetAnalytics is the per-position section of the analytics report.
type AssetAnalytics struct {
	Asset            string                   `json:"asset"`
	EntryPrice       float64                  `json:"entry_price"`
	PositionSize     float64                  `json:"position_size"`
	RiskThreshold    float64                  `json:"risk_threshold"`
	AutoHedge        bool                     `json:"auto_hedge"`
	RecentPrices     []domain.PriceSample     `json:"recent_prices"`
	ThresholdHistory []domain.ThresholdChange `json:"threshold_history"`
	HedgeLogs        []domain.HedgeLogEntry   `json:"hedge_logs"`
	// Risk is computed at the latest recorded price; nil if it cannot be.
	Risk *risk.Report `json:"risk,omitempty"`
}

// Analytics is the full report over all of a user's positions.
type Analytics struct {
	UserID      int64            `json:"user_id"`
	Assets      []AssetAnalytics `json:"assets"`
	Correlation *risk.Matrix     `json:"correlation,omitempty"`
}

// Analytics builds the report for every position of userID. It returns
// domain.ErrNotFound when nothing is monitored.
func (s *PositionService) Analytics(ctx context.Context, userID int64) (Analytics, error) {
	positions, err := s.List(ctx, userID)
	if err != nil {
		return Analytics{}, err
	}
	if len(positions) == 0 {
		return Analytics{}, fmt.Errorf("service: analytics %d: %w", userID, domain.ErrNotFound)
	}

	out := Analytics{UserID: userID, Assets: make([]AssetAnalytics, 0, len(positions))}
	series := make(map[string][]float64, len(positions))
	for _, pos := range positions {
		a := AssetAnalytics{
			Asset:            pos.Asset,
			EntryPrice:       pos.EntryPrice,
			PositionSize:     pos.PositionSize,
			RiskThreshold:    pos.RiskThreshold,
			AutoHedge:        pos.AutoHedge,
			RecentPrices:     pos.LastPrices(s.cfg.DisplayHistory),
			ThresholdHistory: pos.ThresholdHistory,
			HedgeLogs:        pos.HedgeLogs,
		}
		if latest, ok := pos.LatestPrice(); ok {
			if r, err := risk.Snapshot(pos, latest.Price, s.cfg.ContractSize); err == nil {
				a.Risk = &r
			}
		}
		out.Assets = append(out.Assets, a)
		series[pos.Asset] = pos.Prices()
	}

	if m, ok := risk.CorrelationMatrix(series); ok {
		out.Correlation = &m
	}
	return out, nil
}
