// Package bybit implements the spot price feed against the Bybit v5 public
// market API.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Compile-time interface check.
var _ domain.PriceFeed = (*Client)(nil)

// Client fetches spot tickers from Bybit.
type Client struct {
	baseURL    string
	quote      string
	httpClient *http.Client
}

// NewClient creates a Bybit client. baseURL is the API root, e.g.
// "https://api.bybit.com"; quote is appended to assets to form the symbol.
func NewClient(baseURL, quote string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if quote == "" {
		quote = "USDT"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		quote:   strings.ToUpper(quote),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// tickerResponse is the envelope of GET /v5/market/tickers.
type tickerResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

// Symbol returns the spot symbol for asset, e.g. "BTC" -> "BTCUSDT".
func (c *Client) Symbol(asset string) string {
	return domain.NormalizeAsset(asset) + c.quote
}

// SpotPrice returns the last traded spot price of asset.
func (c *Client) SpotPrice(ctx context.Context, asset string) (float64, error) {
	symbol := c.Symbol(asset)

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	reqURL := c.baseURL + "/v5/market/tickers?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("bybit: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("bybit: get ticker %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("bybit: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bybit: get ticker %s: status %d: %s", symbol, resp.StatusCode, truncate(body, 200))
	}

	var tr tickerResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return 0, fmt.Errorf("bybit: decode ticker: %w", err)
	}
	if tr.RetCode != 0 {
		return 0, fmt.Errorf("bybit: api error %d: %s", tr.RetCode, tr.RetMsg)
	}

	for _, t := range tr.Result.List {
		if !strings.EqualFold(t.Symbol, symbol) {
			continue
		}
		d, err := decimal.NewFromString(t.LastPrice)
		if err != nil {
			return 0, fmt.Errorf("bybit: parse last price %q: %w", t.LastPrice, err)
		}
		if !d.IsPositive() {
			return 0, fmt.Errorf("bybit: %s: non-positive price %s: %w", symbol, d, domain.ErrPriceUnavailable)
		}
		return d.InexactFloat64(), nil
	}
	return 0, fmt.Errorf("bybit: symbol %s not in spot tickers: %w", symbol, domain.ErrNotFound)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
