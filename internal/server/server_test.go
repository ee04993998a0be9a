package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/service"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
)

type stubFeed struct{}

func (stubFeed) SpotPrice(context.Context, string) (float64, error) { return 100, nil }

type stubResolver struct{}

func (stubResolver) ResolveProductID(context.Context, string) (string, error) { return "27", nil }

type stubPlacer struct{}

func (stubPlacer) PlaceHedgeOrder(_ context.Context, req domain.HedgeOrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{Success: true, OrderID: "42", Side: req.Side, Size: req.Size, Status: domain.OrderStatusOpen}, nil
}

type stubPrices struct{}

func (stubPrices) SetPrice(context.Context, string, float64, time.Time) error { return nil }

func (stubPrices) GetPrice(_ context.Context, asset string) (float64, time.Time, error) {
	if asset != "BTC" {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return 64000, time.Now().Add(-time.Second), nil
}

func (stubPrices) GetPrices(_ context.Context, assets []string) (map[string]float64, error) {
	return map[string]float64{"BTC": 64000}, nil
}

func newTestServer(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPositionStore(100)
	svc := service.NewPositionService(store, stubFeed{}, stubResolver{}, stubPlacer{}, service.Config{ContractSize: 0.001}, logger)

	reg := prometheus.NewRegistry()
	srv := NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    handler.NewStatusHandler("full", time.Minute, time.Now(), store, logger),
		Positions: handler.NewPositionHandler(svc, logger),
		Prices:    handler.NewPriceHandler(stubPrices{}, logger),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil, nil, logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPositionLifecycle(t *testing.T) {
	h := newTestServer(t, "")

	rec := do(t, h, http.MethodPost, "/api/users/7/positions", `{"asset":"btc","size":2,"threshold":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pos := decode[domain.Position](t, rec)
	assert.Equal(t, "BTC", pos.Asset)
	assert.InDelta(t, 100, pos.EntryPrice, 1e-9)

	rec = do(t, h, http.MethodGet, "/api/users/7/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Positions []domain.Position `json:"positions"`
	}](t, rec)
	require.Len(t, list.Positions, 1)

	rec = do(t, h, http.MethodPut, "/api/users/7/positions/BTC/threshold", `{"threshold":7.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	change := decode[domain.ThresholdChange](t, rec)
	assert.InDelta(t, 5, change.OldThreshold, 1e-9)
	assert.InDelta(t, 7.5, change.NewThreshold, 1e-9)

	rec = do(t, h, http.MethodPut, "/api/users/7/positions/btc/auto-hedge", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/users/7/positions/BTC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.Position](t, rec).AutoHedge)

	rec = do(t, h, http.MethodPost, "/api/users/7/positions/BTC/hedge", `{"size":0.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hedge := decode[service.ManualHedge](t, rec)
	assert.Equal(t, "42", hedge.Entry.OrderID)

	rec = do(t, h, http.MethodPost, "/api/users/7/positions/BTC/hedge", `{"size":0.5}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/users/7/positions/BTC/hedges?since=1d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hedges := decode[struct {
		Hedges []domain.HedgeLogEntry `json:"hedges"`
	}](t, rec)
	require.Len(t, hedges.Hedges, 1)

	rec = do(t, h, http.MethodGet, "/api/users/7/analytics", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["monitored_positions"])

	rec = do(t, h, http.MethodDelete, "/api/users/7/positions/BTC", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/users/7/positions/BTC", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationErrors(t *testing.T) {
	h := newTestServer(t, "")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/users/abc/positions", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/users/7/positions", `{"asset":"BTC","size":-1,"threshold":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/users/7/positions", `{"size":1,"threshold":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/users/7/positions", `{"asset":"BTC","bogus":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/users/7/positions/BTC/auto-hedge", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/api/users/7/positions/BTC/threshold", `{"threshold":3}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/users/7/positions/BTC/hedges?since=soon", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/users/7/analytics", "").Code)
}

func TestPrices(t *testing.T) {
	h := newTestServer(t, "")

	rec := do(t, h, http.MethodGet, "/api/prices/btc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 64000.0, decode[map[string]any](t, rec)["price"])

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/prices/DOGE", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/prices?assets=btc,eth", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/prices", "").Code)
}

func TestAuthAndPublicPaths(t *testing.T) {
	h := newTestServer(t, "secret")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "").Code)

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
