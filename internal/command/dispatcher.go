package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/service"
)

// Service is the subset of service.PositionService the dispatcher drives.
type Service interface {
	StartMonitoring(ctx context.Context, userID int64, asset string, size, threshold float64) (domain.Position, error)
	StopMonitoring(ctx context.Context, userID int64, asset string) error
	StopAll(ctx context.Context, userID int64) (int, error)
	SetAutoHedge(ctx context.Context, userID int64, asset string, enabled bool) error
	SetAutoHedgeAll(ctx context.Context, userID int64, enabled bool) (int, error)
	UpdateThreshold(ctx context.Context, userID int64, asset string, threshold float64) (domain.ThresholdChange, error)
	HedgeNow(ctx context.Context, userID int64, asset string, size float64) (service.ManualHedge, error)
	HedgeHistory(ctx context.Context, userID int64, asset string, since time.Duration) ([]domain.HedgeLogEntry, error)
	Analytics(ctx context.Context, userID int64) (service.Analytics, error)
	Predict(ctx context.Context, asset string) (domain.Prediction, error)
}

var _ Service = (*service.PositionService)(nil)

// Request is one incoming chat command.
type Request struct {
	UserID    int64
	FirstName string
	Text      string
}

// Usage strings.
const (
	usageMonitor   = "Usage: /monitor_risk <asset> <position_size> <risk_threshold> (e.g. /monitor_risk BTC 0.5 10)"
	usageThreshold = "Usage: /update_threshold <asset> <new_threshold>"
	usageHedgeNow  = "Usage: /hedge_now <asset> <size>"
	usageHistory   = "Usage: /hedge_history <asset> [timeframe] (e.g. /hedge_history BTC 24h)"
)

const timeLayout = "2006-01-02 15:04:05"

// Dispatcher executes parsed commands.
type Dispatcher struct {
	svc    Service
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(svc Service, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		svc:    svc,
		logger: logger.With(slog.String("component", "command")),
	}
}

// Handle executes req and returns the reply messages in order. Non-command
// text yields no reply.
func (d *Dispatcher) Handle(ctx context.Context, req Request) []string {
	cmd, args, ok := Parse(req.Text)
	if !ok {
		return nil
	}

	d.logger.DebugContext(ctx, "command received",
		slog.Int64("user_id", req.UserID),
		slog.String("command", cmd),
		slog.Int("args", len(args)),
	)

	switch cmd {
	case "start", "help":
		return []string{welcome(req.FirstName)}
	case "monitor_risk":
		return d.monitor(ctx, req.UserID, args)
	case "auto_hedge":
		return d.autoHedge(ctx, req.UserID, args, true)
	case "disable_auto_hedge":
		return d.autoHedge(ctx, req.UserID, args, false)
	case "update_threshold":
		return d.updateThreshold(ctx, req.UserID, args)
	case "stop_monitor_risk":
		return d.stop(ctx, req.UserID, args)
	case "hedge_now":
		return d.hedgeNow(ctx, req.UserID, args)
	case "hedge_history":
		return d.hedgeHistory(ctx, req.UserID, args)
	case "view_full_analytics":
		return d.analytics(ctx, req.UserID)
	case "predict_bitcoin_price":
		return d.predict(ctx, "BTC")
	default:
		return []string{fmt.Sprintf("Unknown command /%s. Send /start to see what I can do.", cmd)}
	}
}

func welcome(name string) string {
	greeting := "Hello!"
	if name != "" {
		greeting = fmt.Sprintf("Hello %s!", name)
	}
	return greeting + "\n\n" +
		"I'm your crypto risk hedging bot. Commands:\n\n" +
		"/monitor_risk <asset> <position_size> <risk_threshold>\n" +
		"/predict_bitcoin_price\n" +
		"/auto_hedge [asset]\n" +
		"/disable_auto_hedge [asset]\n" +
		"/update_threshold <asset> <new_threshold>\n" +
		"/view_full_analytics\n" +
		"/stop_monitor_risk [asset]\n" +
		"/hedge_now <asset> <size>\n" +
		"/hedge_history <asset> [timeframe]"
}

func (d *Dispatcher) monitor(ctx context.Context, userID int64, args []string) []string {
	if len(args) != 3 {
		return []string{usageMonitor}
	}
	size, ok := parsePositive(args[1])
	if !ok {
		return []string{"Position size must be a positive number.\n" + usageMonitor}
	}
	threshold, ok := parsePositive(args[2])
	if !ok {
		return []string{"Risk threshold must be a positive number.\n" + usageMonitor}
	}

	pos, err := d.svc.StartMonitoring(ctx, userID, args[0], size, threshold)
	if err != nil {
		return []string{d.failure(ctx, "monitor", domain.NormalizeAsset(args[0]), err)}
	}
	return []string{fmt.Sprintf("Monitoring started for %s\nCurrent price: $%.2f\nPosition size: %g\nRisk threshold: %g%%",
		pos.Asset, pos.EntryPrice, pos.PositionSize, pos.RiskThreshold)}
}

func (d *Dispatcher) autoHedge(ctx context.Context, userID int64, args []string, enabled bool) []string {
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	if len(args) == 0 {
		n, err := d.svc.SetAutoHedgeAll(ctx, userID, enabled)
		if errors.Is(err, domain.ErrNotFound) {
			return []string{"You haven't started monitoring any assets yet. Use /monitor_risk."}
		}
		if err != nil {
			return []string{d.failure(ctx, "auto_hedge", "", err)}
		}
		return []string{fmt.Sprintf("Auto-hedge %s for all %d monitored assets.", state, n)}
	}

	asset := domain.NormalizeAsset(args[0])
	if err := d.svc.SetAutoHedge(ctx, userID, asset, enabled); err != nil {
		return []string{d.failure(ctx, "auto_hedge", asset, err)}
	}
	return []string{fmt.Sprintf("Auto-hedge %s for %s.", state, asset)}
}

func (d *Dispatcher) updateThreshold(ctx context.Context, userID int64, args []string) []string {
	if len(args) != 2 {
		return []string{usageThreshold}
	}
	threshold, ok := parsePositive(args[1])
	if !ok {
		return []string{"Threshold must be a positive number.\n" + usageThreshold}
	}
	asset := domain.NormalizeAsset(args[0])
	change, err := d.svc.UpdateThreshold(ctx, userID, asset, threshold)
	if err != nil {
		return []string{d.failure(ctx, "update_threshold", asset, err)}
	}
	return []string{fmt.Sprintf("Threshold for %s updated from %.2f%% to %.2f%%.", asset, change.OldThreshold, change.NewThreshold)}
}

func (d *Dispatcher) stop(ctx context.Context, userID int64, args []string) []string {
	if len(args) == 0 {
		n, err := d.svc.StopAll(ctx, userID)
		if err != nil {
			return []string{d.failure(ctx, "stop", "", err)}
		}
		if n == 0 {
			return []string{"You are not monitoring any assets."}
		}
		return []string{fmt.Sprintf("Stopped monitoring all %d assets.", n)}
	}

	asset := domain.NormalizeAsset(args[0])
	if err := d.svc.StopMonitoring(ctx, userID, asset); err != nil {
		return []string{d.failure(ctx, "stop", asset, err)}
	}
	return []string{fmt.Sprintf("Stopped monitoring %s.", asset)}
}

func (d *Dispatcher) hedgeNow(ctx context.Context, userID int64, args []string) []string {
	if len(args) != 2 {
		return []string{usageHedgeNow}
	}
	size, ok := parsePositive(args[1])
	if !ok {
		return []string{"Size must be a positive number.\n" + usageHedgeNow}
	}
	asset := domain.NormalizeAsset(args[0])
	res, err := d.svc.HedgeNow(ctx, userID, asset, size)
	if err != nil {
		return []string{d.failure(ctx, "hedge_now", asset, err)}
	}
	e := res.Entry
	return []string{fmt.Sprintf("Hedge placed for %s:\nOrder ID: %s\nSide: %s %g\nPrice: $%.2f\nStatus: %s\n%s UTC",
		asset, e.OrderID, strings.ToUpper(string(e.Side)), e.Size, res.Price, e.Status, e.Time.UTC().Format(timeLayout))}
}

func (d *Dispatcher) hedgeHistory(ctx context.Context, userID int64, args []string) []string {
	if len(args) < 1 || len(args) > 2 {
		return []string{usageHistory}
	}
	var since time.Duration
	label := "all time"
	if len(args) == 2 {
		tf, err := ParseTimeframe(args[1])
		if err != nil {
			return []string{"Invalid timeframe. Use e.g. 12h, 7d or 2w.\n" + usageHistory}
		}
		since, label = tf, "last "+args[1]
	}

	asset := domain.NormalizeAsset(args[0])
	logs, err := d.svc.HedgeHistory(ctx, userID, asset, since)
	if err != nil {
		return []string{d.failure(ctx, "hedge_history", asset, err)}
	}
	if len(logs) == 0 {
		return []string{fmt.Sprintf("No hedges for %s (%s).", asset, label)}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hedge history for %s (%s):\n", asset, label)
	for _, h := range logs {
		fmt.Fprintf(&b, "- %s | Order: %s | %s %g | %s\n",
			h.Time.UTC().Format(timeLayout), h.OrderID, strings.ToUpper(string(h.Side)), h.Size, h.Status)
	}
	return []string{strings.TrimRight(b.String(), "\n")}
}

func (d *Dispatcher) analytics(ctx context.Context, userID int64) []string {
	a, err := d.svc.Analytics(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return []string{"No assets are currently being tracked for analytics."}
	}
	if err != nil {
		return []string{d.failure(ctx, "analytics", "", err)}
	}

	replies := make([]string, 0, len(a.Assets)+1)
	for _, asset := range a.Assets {
		replies = append(replies, formatAssetAnalytics(asset))
	}
	if a.Correlation != nil {
		replies = append(replies, formatCorrelation(a.Correlation.Assets, a.Correlation.Values))
	}
	return replies
}

func (d *Dispatcher) predict(ctx context.Context, asset string) []string {
	p, err := d.svc.Predict(ctx, asset)
	if err != nil {
		return []string{d.failure(ctx, "predict", asset, err)}
	}
	return []string{fmt.Sprintf("%s price prediction\n\nPredicted close: $%.2f\n\nMarket snapshot:\n- Open: $%.2f\n- High: $%.2f\n- Low: $%.2f\n- Volume: %.2f",
		p.Asset, p.PredictedClose, p.Open, p.High, p.Low, p.Volume)}
}

// failure maps service errors to user-facing replies and logs the rest.
func (d *Dispatcher) failure(ctx context.Context, op, asset string, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound) && asset != "":
		return fmt.Sprintf("You are not monitoring %s. Use /monitor_risk first.", asset)
	case errors.Is(err, domain.ErrRateLimited):
		return "Please wait a few seconds before hedging this asset again."
	case errors.Is(err, domain.ErrNoProductID):
		return fmt.Sprintf("No hedge product found for %s.", asset)
	case errors.Is(err, domain.ErrPriceUnavailable):
		return "Failed to fetch the current price. Please try again later."
	case errors.Is(err, domain.ErrOrderRejected):
		return "The exchange rejected the hedge order: " + rejectReason(err)
	case errors.Is(err, domain.ErrInvalidThreshold), errors.Is(err, domain.ErrInvalidPosition):
		return "Invalid value: " + err.Error()
	}
	d.logger.ErrorContext(ctx, "command failed",
		slog.String("op", op),
		slog.String("asset", asset),
		slog.String("error", err.Error()),
	)
	return "Something went wrong. Please try again."
}

// rejectReason extracts the exchange message from a wrapped rejection of
// the form "...: <reason>: order rejected by exchange".
func rejectReason(err error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+domain.ErrOrderRejected.Error())
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
