package engine

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/risk"
)

func noRiskMessage(asset string, r risk.Report) (string, string) {
	title := "No risk: " + asset
	body := fmt.Sprintf("Price $%.2f is %.2f%% from entry $%.2f, within your %.2f%% threshold.",
		r.CurrentPrice, r.DropPercent, r.EntryPrice, r.Threshold)
	return title, body
}

func alertMessage(asset string, r risk.Report) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Entry price: $%.2f\n", r.EntryPrice)
	fmt.Fprintf(&b, "Current price: $%.2f\n", r.CurrentPrice)
	fmt.Fprintf(&b, "Loss: %.2f%% (threshold %.2f%%)\n", r.DropPercent, r.Threshold)
	fmt.Fprintf(&b, "Spot delta: %.4f\n", r.SpotDelta)
	fmt.Fprintf(&b, "Notional: $%.2f\n", r.Notional)
	if r.MaxDrawdown != nil {
		fmt.Fprintf(&b, "Max drawdown: %.2f%%\n", *r.MaxDrawdown)
	}
	if r.VaR95 != nil {
		fmt.Fprintf(&b, "VaR (95%%): $%.2f\n", *r.VaR95)
	}
	if r.PerpHedgeContracts != nil {
		fmt.Fprintf(&b, "Suggested perp hedge: %.4f contracts\n", *r.PerpHedgeContracts)
	}
	b.WriteString("Consider hedging your position or enable /auto_hedge.")
	return "Risk alert: " + asset, b.String()
}

func hedgeExecutedMessage(asset string, res domain.OrderResult, entry domain.HedgeLogEntry) (string, string) {
	symbol := res.Symbol
	if symbol == "" {
		symbol = asset
	}
	body := fmt.Sprintf(
		"Asset: %s\nSide: %s\nSize: %g\nStatus: %s\nTime: %s UTC\nOrder ID: %s",
		symbol,
		strings.ToUpper(string(entry.Side)),
		entry.Size,
		entry.Status,
		entry.Time.UTC().Format("2006-01-02 15:04"),
		entry.OrderID,
	)
	return "Auto-hedge executed", body
}

func hedgeFailedMessage(asset, reason string) (string, string) {
	return "Auto-hedge failed: " + asset, reason
}

func invalidThresholdMessage(asset string, threshold float64) (string, string) {
	return "Invalid risk threshold: " + asset,
		fmt.Sprintf("Threshold %.2f%% is not positive; %s is not being evaluated. Use /update_threshold %s <percent>.",
			threshold, asset, asset)
}
