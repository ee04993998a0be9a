package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/command"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	StartMonitoring(ctx context.Context, userID int64, asset string, size, threshold float64) (domain.Position, error)
	StopMonitoring(ctx context.Context, userID int64, asset string) error
	StopAll(ctx context.Context, userID int64) (int, error)
	SetAutoHedge(ctx context.Context, userID int64, asset string, enabled bool) error
	UpdateThreshold(ctx context.Context, userID int64, asset string, threshold float64) (domain.ThresholdChange, error)
	Get(ctx context.Context, userID int64, asset string) (domain.Position, error)
	List(ctx context.Context, userID int64) ([]domain.Position, error)
	HedgeNow(ctx context.Context, userID int64, asset string, size float64) (service.ManualHedge, error)
	HedgeHistory(ctx context.Context, userID int64, asset string, since time.Duration) ([]domain.HedgeLogEntry, error)
	Analytics(ctx context.Context, userID int64) (service.Analytics, error)
}

var _ PositionService = (*service.PositionService)(nil)

// PositionHandler serves the per-user position endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type monitorRequest struct {
	Asset     string  `json:"asset"`
	Size      float64 `json:"size"`
	Threshold float64 `json:"threshold"`
}

type thresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

type autoHedgeRequest struct {
	Enabled *bool `json:"enabled"`
}

type hedgeRequest struct {
	Size float64 `json:"size"`
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

type hedgesResponse struct {
	Asset  string                 `json:"asset"`
	Since  string                 `json:"since,omitempty"`
	Hedges []domain.HedgeLogEntry `json:"hedges"`
}

// ListPositions returns every monitored position of a user.
// GET /api/users/{user}/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	positions, err := h.positions.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// StartMonitoring starts (or restarts) monitoring an asset.
// POST /api/users/{user}/positions {"asset":"BTC","size":1,"threshold":5}
func (h *PositionHandler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req monitorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if domain.NormalizeAsset(req.Asset) == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	pos, err := h.positions.StartMonitoring(r.Context(), userID, req.Asset, req.Size, req.Threshold)
	if err != nil {
		writeServiceError(w, r, h.logger, "start monitoring", err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// StopAll stops monitoring every asset of a user.
// DELETE /api/users/{user}/positions
func (h *PositionHandler) StopAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	n, err := h.positions.StopAll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, "stop monitoring", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// GetPosition returns one monitored position.
// GET /api/users/{user}/positions/{asset}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	pos, err := h.positions.Get(r.Context(), userID, assetParam(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// StopMonitoring stops monitoring one asset.
// DELETE /api/users/{user}/positions/{asset}
func (h *PositionHandler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.positions.StopMonitoring(r.Context(), userID, assetParam(r)); err != nil {
		writeServiceError(w, r, h.logger, "stop monitoring", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateThreshold changes the risk threshold of a position.
// PUT /api/users/{user}/positions/{asset}/threshold {"threshold":7.5}
func (h *PositionHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req thresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	change, err := h.positions.UpdateThreshold(r.Context(), userID, assetParam(r), req.Threshold)
	if err != nil {
		writeServiceError(w, r, h.logger, "update threshold", err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// SetAutoHedge enables or disables auto-hedging of a position.
// PUT /api/users/{user}/positions/{asset}/auto-hedge {"enabled":true}
func (h *PositionHandler) SetAutoHedge(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req autoHedgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	asset := assetParam(r)
	if err := h.positions.SetAutoHedge(r.Context(), userID, asset, *req.Enabled); err != nil {
		writeServiceError(w, r, h.logger, "set auto-hedge", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "auto_hedge": *req.Enabled})
}

// Hedge places a manual hedge order.
// POST /api/users/{user}/positions/{asset}/hedge {"size":0.5}
func (h *PositionHandler) Hedge(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req hedgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.positions.HedgeNow(r.Context(), userID, assetParam(r), req.Size)
	if err != nil {
		writeServiceError(w, r, h.logger, "hedge", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListHedges returns the hedge log of a position, optionally limited to a
// lookback window ("24h", "7d", "2w").
// GET /api/users/{user}/positions/{asset}/hedges?since=24h
func (h *PositionHandler) ListHedges(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var since time.Duration
	raw := r.URL.Query().Get("since")
	if raw != "" {
		d, err := command.ParseTimeframe(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q", raw))
			return
		}
		since = d
	}
	asset := assetParam(r)
	hedges, err := h.positions.HedgeHistory(r.Context(), userID, asset, since)
	if err != nil {
		writeServiceError(w, r, h.logger, "hedge history", err)
		return
	}
	if hedges == nil {
		hedges = []domain.HedgeLogEntry{}
	}
	writeJSON(w, http.StatusOK, hedgesResponse{Asset: asset, Since: raw, Hedges: hedges})
}

// GetAnalytics returns risk analytics for every position of a user.
// GET /api/users/{user}/analytics
func (h *PositionHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	a, err := h.positions.Analytics(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, "analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *PositionHandler) user(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := userParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}
