package engine

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the pause between evaluation passes.
const DefaultInterval = 60 * time.Second

// Ticker runs one full evaluation pass.
type Ticker interface {
	Tick(ctx context.Context) TickSummary
}

// Scheduler drives a Ticker at a fixed interval. A pass always completes (or
// is abandoned on shutdown) before the next one starts; the interval is
// measured from the end of one pass to the start of the next.
type Scheduler struct {
	ticker   Ticker
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. A non-positive interval uses DefaultInterval.
func NewScheduler(t Ticker, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		ticker:   t,
		interval: interval,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run evaluates immediately, then once per interval until ctx is cancelled.
// Failed evaluations are retried by the next pass; nothing else retries.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			sum := s.ticker.Tick(ctx)
			if sum.Aborted {
				continue
			}
			s.logger.DebugContext(ctx, "tick finished",
				slog.Int("evaluated", sum.Evaluated),
				slog.Duration("took", sum.Duration),
			)
			timer.Reset(s.interval)
		}
	}
}
