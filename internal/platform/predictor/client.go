// Package predictor calls the external price forecasting service.
package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.Predictor = (*Client)(nil)

// Client is an HTTP client for GET <base>/predict?asset=<ASSET>.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a predictor client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Predict returns the forecast for asset.
func (c *Client) Predict(ctx context.Context, asset string) (domain.Prediction, error) {
	asset = domain.NormalizeAsset(asset)
	if c.baseURL == "" {
		return domain.Prediction{}, fmt.Errorf("predictor: no url configured: %w", domain.ErrNotFound)
	}

	reqURL := c.baseURL + "/predict?" + url.Values{"asset": {asset}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("predictor: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("predictor: predict %s: %w", asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("predictor: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Prediction{}, fmt.Errorf("predictor: predict %s: status %d", asset, resp.StatusCode)
	}

	var p domain.Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Prediction{}, fmt.Errorf("predictor: decode: %w", err)
	}
	if p.Asset == "" {
		p.Asset = asset
	}
	return p, nil
}
