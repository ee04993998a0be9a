package command

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/service"
)

func formatAssetAnalytics(a service.AssetAnalytics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analytics for %s:\n", a.Asset)
	fmt.Fprintf(&b, "Entry price: $%.2f\n", a.EntryPrice)
	fmt.Fprintf(&b, "Position size: %g\n", a.PositionSize)
	fmt.Fprintf(&b, "Threshold: %g%%\n", a.RiskThreshold)
	fmt.Fprintf(&b, "Auto-hedge: %s\n", onOff(a.AutoHedge))

	if r := a.Risk; r != nil {
		fmt.Fprintf(&b, "\nRisk at $%.2f:\n", r.CurrentPrice)
		fmt.Fprintf(&b, "- Drop: %.2f%%\n", r.DropPercent)
		fmt.Fprintf(&b, "- Notional: $%.2f\n", r.Notional)
		if r.MaxDrawdown != nil {
			fmt.Fprintf(&b, "- Max drawdown: %.2f%%\n", *r.MaxDrawdown*100)
		}
		if r.VaR95 != nil {
			fmt.Fprintf(&b, "- VaR (95%%): $%.2f\n", *r.VaR95)
		}
		if r.PerpHedgeContracts != nil {
			fmt.Fprintf(&b, "- Perp hedge: %.0f contracts\n", *r.PerpHedgeContracts)
		}
	}

	fmt.Fprintf(&b, "\nPrice history (last %d):\n", len(a.RecentPrices))
	if len(a.RecentPrices) == 0 {
		b.WriteString("- No price history available.\n")
	}
	for _, p := range a.RecentPrices {
		fmt.Fprintf(&b, "- %s UTC -> $%.2f\n", p.Time.UTC().Format("2006-01-02 15:04"), p.Price)
	}

	b.WriteString("\nThreshold changes:\n")
	if len(a.ThresholdHistory) == 0 {
		b.WriteString("- No threshold change history.\n")
	}
	for _, t := range a.ThresholdHistory {
		fmt.Fprintf(&b, "- %s: %.2f%% -> %.2f%%\n", t.Time.UTC().Format(timeLayout), t.OldThreshold, t.NewThreshold)
	}

	b.WriteString("\nHedge logs:\n")
	if len(a.HedgeLogs) == 0 {
		b.WriteString("- No hedge logs available.\n")
	}
	for _, h := range a.HedgeLogs {
		fmt.Fprintf(&b, "- %s | Order: %s | %s %g | %s\n",
			h.Time.UTC().Format(timeLayout), h.OrderID, strings.ToUpper(string(h.Side)), h.Size, h.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCorrelation(assets []string, values [][]float64) string {
	var b strings.Builder
	b.WriteString("Correlation of price changes:\n")
	for i, a := range assets {
		for j := i + 1; j < len(assets); j++ {
			fmt.Fprintf(&b, "- %s/%s: %.2f\n", a, assets[j], values[i][j])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
