package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// UserLister reports the users that have monitored positions.
type UserLister interface {
	ListUsers(ctx context.Context) ([]int64, error)
	ListAssets(ctx context.Context, userID int64) ([]string, error)
}

// StatusHandler serves the runtime status of the process.
type StatusHandler struct {
	mode      string
	interval  time.Duration
	startedAt time.Time
	users     UserLister
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, interval time.Duration, startedAt time.Time, users UserLister, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		interval:  interval,
		startedAt: startedAt,
		users:     users,
		logger:    logger,
	}
}

type statusResponse struct {
	Mode               string `json:"mode"`
	EvaluationInterval string `json:"evaluation_interval"`
	StartedAt          string `json:"started_at"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	Users              int    `json:"users"`
	MonitoredPositions int    `json:"monitored_positions"`
}

// GetStatus responds with the mode, uptime and monitored position counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, "status", err)
		return
	}
	positions := 0
	for _, u := range users {
		assets, err := h.users.ListAssets(ctx, u)
		if err != nil {
			writeServiceError(w, r, h.logger, "status", err)
			return
		}
		positions += len(assets)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Mode:               h.mode,
		EvaluationInterval: h.interval.String(),
		StartedAt:          h.startedAt.UTC().Format(time.RFC3339),
		UptimeSeconds:      int64(time.Since(h.startedAt).Seconds()),
		Users:              len(users),
		MonitoredPositions: positions,
	})
}
