package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/risk"
	"github.com/alanyoungcy/hedgebot/internal/service"
)

type call struct {
	op    string
	asset string
	a, b  float64
	on    bool
	since time.Duration
}

type fakeService struct {
	calls []call
	err   error
	n     int
	hist  []domain.HedgeLogEntry
	ana   service.Analytics
}

func (f *fakeService) StartMonitoring(_ context.Context, _ int64, asset string, size, threshold float64) (domain.Position, error) {
	f.calls = append(f.calls, call{op: "monitor", asset: asset, a: size, b: threshold})
	if f.err != nil {
		return domain.Position{}, f.err
	}
	return domain.Position{Asset: domain.NormalizeAsset(asset), EntryPrice: 60000, PositionSize: size, RiskThreshold: threshold}, nil
}

func (f *fakeService) StopMonitoring(_ context.Context, _ int64, asset string) error {
	f.calls = append(f.calls, call{op: "stop", asset: asset})
	return f.err
}

func (f *fakeService) StopAll(context.Context, int64) (int, error) {
	f.calls = append(f.calls, call{op: "stop_all"})
	return f.n, f.err
}

func (f *fakeService) SetAutoHedge(_ context.Context, _ int64, asset string, enabled bool) error {
	f.calls = append(f.calls, call{op: "auto", asset: asset, on: enabled})
	return f.err
}

func (f *fakeService) SetAutoHedgeAll(_ context.Context, _ int64, enabled bool) (int, error) {
	f.calls = append(f.calls, call{op: "auto_all", on: enabled})
	return f.n, f.err
}

func (f *fakeService) UpdateThreshold(_ context.Context, _ int64, asset string, threshold float64) (domain.ThresholdChange, error) {
	f.calls = append(f.calls, call{op: "threshold", asset: asset, a: threshold})
	return domain.ThresholdChange{OldThreshold: 5, NewThreshold: threshold}, f.err
}

func (f *fakeService) HedgeNow(_ context.Context, _ int64, asset string, size float64) (service.ManualHedge, error) {
	f.calls = append(f.calls, call{op: "hedge", asset: asset, a: size})
	if f.err != nil {
		return service.ManualHedge{}, f.err
	}
	return service.ManualHedge{
		Entry: domain.HedgeLogEntry{Time: time.Unix(0, 0), OrderID: "X9", Side: domain.OrderSideSell, Size: size, Status: domain.OrderStatusOpen},
		Price: 59000,
	}, nil
}

func (f *fakeService) HedgeHistory(_ context.Context, _ int64, asset string, since time.Duration) ([]domain.HedgeLogEntry, error) {
	f.calls = append(f.calls, call{op: "history", asset: asset, since: since})
	return f.hist, f.err
}

func (f *fakeService) Analytics(context.Context, int64) (service.Analytics, error) {
	f.calls = append(f.calls, call{op: "analytics"})
	return f.ana, f.err
}

func (f *fakeService) Predict(_ context.Context, asset string) (domain.Prediction, error) {
	f.calls = append(f.calls, call{op: "predict", asset: asset})
	return domain.Prediction{Asset: asset, PredictedClose: 65000}, f.err
}

func newDispatcher() (*Dispatcher, *fakeService) {
	svc := &fakeService{}
	return NewDispatcher(svc, slog.New(slog.NewTextHandler(io.Discard, nil))), svc
}

func handle(d *Dispatcher, text string) []string {
	return d.Handle(context.Background(), Request{UserID: 1, FirstName: "Ada", Text: text})
}

func TestParse(t *testing.T) {
	cmd, args, ok := Parse("/Monitor_Risk@HedgeBot btc 0.5   10")
	require.True(t, ok)
	assert.Equal(t, "monitor_risk", cmd)
	assert.Equal(t, []string{"btc", "0.5", "10"}, args)

	_, _, ok = Parse("hello there")
	assert.False(t, ok)
	_, _, ok = Parse("   ")
	assert.False(t, ok)
	_, _, ok = Parse("/@bot")
	assert.False(t, ok)
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]time.Duration{
		"24h":  24 * time.Hour,
		"90m":  90 * time.Minute,
		"7d":   7 * 24 * time.Hour,
		"2W":   14 * 24 * time.Hour,
		"1.5d": 36 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "d", "-1d", "abc", "0h"} {
		_, err := ParseTimeframe(bad)
		assert.Error(t, err, bad)
	}
}

func TestHandleStart(t *testing.T) {
	d, _ := newDispatcher()
	replies := handle(d, "/start")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Hello Ada!")
	assert.Contains(t, replies[0], "/hedge_history")
}

func TestHandleMonitor(t *testing.T) {
	d, svc := newDispatcher()

	replies := handle(d, "/monitor_risk btc 0.5 10")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Monitoring started for BTC")
	assert.Contains(t, replies[0], "$60000.00")
	assert.Equal(t, call{op: "monitor", asset: "btc", a: 0.5, b: 10}, svc.calls[0])

	for _, bad := range []string{"/monitor_risk", "/monitor_risk BTC x 10", "/monitor_risk BTC 1 -3", "/monitor_risk BTC 1 NaN"} {
		replies = handle(d, bad)
		require.Len(t, replies, 1, bad)
		assert.Contains(t, replies[0], "Usage: /monitor_risk", bad)
	}
	assert.Len(t, svc.calls, 1)
}

func TestHandleMonitorPriceFailure(t *testing.T) {
	d, svc := newDispatcher()
	svc.err = fmt.Errorf("service: price: %w", domain.ErrPriceUnavailable)
	replies := handle(d, "/monitor_risk BTC 1 5")
	assert.Equal(t, []string{"Failed to fetch the current price. Please try again later."}, replies)
}

func TestHandleAutoHedge(t *testing.T) {
	d, svc := newDispatcher()
	svc.n = 2

	assert.Equal(t, []string{"Auto-hedge enabled for all 2 monitored assets."}, handle(d, "/auto_hedge"))
	assert.Equal(t, []string{"Auto-hedge disabled for ETH."}, handle(d, "/disable_auto_hedge eth"))
	assert.Equal(t, call{op: "auto", asset: "ETH", on: false}, svc.calls[1])

	svc.err = fmt.Errorf("wrapped: %w", domain.ErrNotFound)
	assert.Equal(t, []string{"You haven't started monitoring any assets yet. Use /monitor_risk."}, handle(d, "/auto_hedge"))
	assert.Equal(t, []string{"You are not monitoring SOL. Use /monitor_risk first."}, handle(d, "/auto_hedge sol"))
}

func TestHandleUpdateThreshold(t *testing.T) {
	d, svc := newDispatcher()
	assert.Equal(t, []string{"Threshold for BTC updated from 5.00% to 15.00%."}, handle(d, "/update_threshold btc 15"))
	assert.Equal(t, []string{usageThreshold}, handle(d, "/update_threshold btc"))
	assert.Len(t, svc.calls, 1)
}

func TestHandleStop(t *testing.T) {
	d, svc := newDispatcher()
	assert.Equal(t, []string{"Stopped monitoring BTC."}, handle(d, "/stop_monitor_risk btc"))
	assert.Equal(t, []string{"You are not monitoring any assets."}, handle(d, "/stop_monitor_risk"))
	svc.n = 3
	assert.Equal(t, []string{"Stopped monitoring all 3 assets."}, handle(d, "/stop_monitor_risk"))
}

func TestHandleHedgeNow(t *testing.T) {
	d, svc := newDispatcher()

	replies := handle(d, "/hedge_now btc 0.2")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Hedge placed for BTC")
	assert.Contains(t, replies[0], "Order ID: X9")
	assert.Contains(t, replies[0], "Side: SELL 0.2")
	assert.Contains(t, replies[0], "Price: $59000.00")

	assert.Equal(t, []string{usageHedgeNow}, handle(d, "/hedge_now btc"))

	svc.err = fmt.Errorf("service: hedge 1:BTC: %w", domain.ErrRateLimited)
	assert.Equal(t, []string{"Please wait a few seconds before hedging this asset again."}, handle(d, "/hedge_now btc 1"))

	svc.err = fmt.Errorf("service: hedge 1:BTC: %s: %w", "insufficient_margin", domain.ErrOrderRejected)
	assert.Equal(t, []string{"The exchange rejected the hedge order: insufficient_margin"}, handle(d, "/hedge_now btc 1"))
}

func TestHandleHedgeHistory(t *testing.T) {
	d, svc := newDispatcher()

	assert.Equal(t, []string{"No hedges for BTC (all time)."}, handle(d, "/hedge_history btc"))

	svc.hist = []domain.HedgeLogEntry{{
		Time: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), OrderID: "A1",
		Side: domain.OrderSideSell, Size: 0.5, Status: domain.OrderStatusClosed,
	}}
	replies := handle(d, "/hedge_history btc 7d")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Hedge history for BTC (last 7d)")
	assert.Contains(t, replies[0], "2024-03-01 10:00:00 | Order: A1 | SELL 0.5 | closed")
	assert.Equal(t, 7*24*time.Hour, svc.calls[1].since)

	assert.Contains(t, handle(d, "/hedge_history btc forever")[0], "Invalid timeframe")
}

func TestHandleAnalytics(t *testing.T) {
	d, svc := newDispatcher()
	dd := -0.05
	svc.ana = service.Analytics{
		Assets: []service.AssetAnalytics{
			{Asset: "BTC", EntryPrice: 60000, RiskThreshold: 5, AutoHedge: true,
				RecentPrices: []domain.PriceSample{{Time: time.Unix(0, 0), Price: 60000}},
				Risk:         &risk.Report{CurrentPrice: 57000, DropPercent: 5, MaxDrawdown: &dd}},
			{Asset: "ETH", EntryPrice: 3000, RiskThreshold: 10},
		},
		Correlation: &risk.Matrix{Assets: []string{"BTC", "ETH"}, Values: [][]float64{{1, 0.8}, {0.8, 1}}},
	}

	replies := handle(d, "/View_Full_Analytics")
	require.Len(t, replies, 3)
	assert.Contains(t, replies[0], "Analytics for BTC")
	assert.Contains(t, replies[0], "Auto-hedge: ON")
	assert.Contains(t, replies[0], "Max drawdown: -5.00%")
	assert.Contains(t, replies[1], "No hedge logs available.")
	assert.Contains(t, replies[2], "BTC/ETH: 0.80")

	svc.err = domain.ErrNotFound
	assert.Equal(t, []string{"No assets are currently being tracked for analytics."}, handle(d, "/view_full_analytics"))
}

func TestHandlePredictAndUnknown(t *testing.T) {
	d, svc := newDispatcher()
	replies := handle(d, "/predict_Bitcoin_price")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Predicted close: $65000.00")
	assert.Equal(t, "BTC", svc.calls[0].asset)

	assert.Contains(t, handle(d, "/frobnicate")[0], "Unknown command /frobnicate")
	assert.Nil(t, handle(d, "just chatting"))
}
