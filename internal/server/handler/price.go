package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// PriceHandler serves the last spot prices recorded by the engine.
type PriceHandler struct {
	prices domain.PriceCache
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices domain.PriceCache, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

type priceResponse struct {
	Asset      string    `json:"asset"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
	AgeSeconds float64   `json:"age_seconds"`
}

// GetPrice returns the cached price of an asset.
// GET /api/prices/{asset}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := assetParam(r)
	price, ts, err := h.prices.GetPrice(r.Context(), asset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no recent price for "+asset)
			return
		}
		writeServiceError(w, r, h.logger, "get price", err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		Asset:      asset,
		Price:      price,
		Time:       ts.UTC(),
		AgeSeconds: time.Since(ts).Seconds(),
	})
}

// ListPrices returns the cached prices of several assets. Assets without a
// recent price are omitted.
// GET /api/prices?assets=BTC,ETH
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	var assets []string
	for _, a := range strings.Split(r.URL.Query().Get("assets"), ",") {
		if a = domain.NormalizeAsset(a); a != "" {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		writeError(w, http.StatusBadRequest, "assets query parameter required")
		return
	}
	prices, err := h.prices.GetPrices(r.Context(), assets)
	if err != nil {
		writeServiceError(w, r, h.logger, "list prices", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}
