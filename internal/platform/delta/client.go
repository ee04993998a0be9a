// Package delta implements product lookup and signed hedge order placement
// against the Delta Exchange REST API.
package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.ProductResolver = (*Client)(nil)
	_ domain.OrderPlacer     = (*Client)(nil)
)

// Config holds the client settings.
type Config struct {
	BaseURL         string
	APIKey          string
	APISecret       string
	SymbolSuffix    string
	SymbolMap       map[string]string
	ProductCacheTTL time.Duration
	OrderType       string
	TimeInForce     string
	Timeout         time.Duration
}

// Client is the REST client for Delta Exchange.
type Client struct {
	cfg        Config
	auth       *crypto.HMACAuth
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	products  map[string]Product // by symbol
	fetchedAt time.Time
}

// NewClient creates a Delta Exchange client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ProductCacheTTL <= 0 {
		cfg.ProductCacheTTL = 10 * time.Minute
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "limit_order"
	}
	if cfg.TimeInForce == "" {
		cfg.TimeInForce = "gtc"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		auth: &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// ProductSymbol maps an asset to its Delta product symbol, using the
// configured overrides first and the symbol suffix otherwise.
func (c *Client) ProductSymbol(asset string) string {
	asset = domain.NormalizeAsset(asset)
	if s, ok := c.cfg.SymbolMap[asset]; ok && s != "" {
		return strings.ToUpper(s)
	}
	return asset + strings.ToUpper(c.cfg.SymbolSuffix)
}

// ListProducts returns every product listed on the exchange.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v2/products", nil, false)
	if err != nil {
		return nil, fmt.Errorf("delta: list products: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("delta: list products: status %d: %s", status, truncate(body, 200))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("delta: decode products: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("delta: list products: %s", errorCode(env.Error))
	}
	var products []Product
	if err := json.Unmarshal(env.Result, &products); err != nil {
		return nil, fmt.Errorf("delta: decode products: %w", err)
	}
	return products, nil
}

// ResolveProductID returns the product id for asset. The product list is
// cached for ProductCacheTTL; a stale cache is used if a refresh fails.
func (c *Client) ResolveProductID(ctx context.Context, asset string) (string, error) {
	symbol := c.ProductSymbol(asset)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.products == nil || c.now().Sub(c.fetchedAt) > c.cfg.ProductCacheTTL {
		products, err := c.ListProducts(ctx)
		switch {
		case err == nil:
			c.products = make(map[string]Product, len(products))
			for _, p := range products {
				c.products[strings.ToUpper(p.Symbol)] = p
			}
			c.fetchedAt = c.now()
		case c.products == nil:
			return "", fmt.Errorf("delta: resolve %s: %w", symbol, err)
		}
	}

	p, ok := c.products[symbol]
	if !ok {
		return "", fmt.Errorf("delta: resolve %s: %w", symbol, domain.ErrNoProductID)
	}
	return strconv.FormatInt(p.ID, 10), nil
}

// PlaceHedgeOrder submits a signed limit order. Exchange-side rejections are
// returned as OrderResult{Success: false}; the error is reserved for request,
// transport and decoding failures.
func (c *Client) PlaceHedgeOrder(ctx context.Context, req domain.HedgeOrderRequest) (domain.OrderResult, error) {
	productID, err := strconv.ParseInt(req.ProductID, 10, 64)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("delta: place order: product id %q: %w", req.ProductID, err)
	}
	if req.Size <= 0 || req.LimitPrice <= 0 {
		return domain.OrderResult{}, fmt.Errorf("delta: place order: size %v price %v: %w", req.Size, req.LimitPrice, domain.ErrInvalidPosition)
	}
	side := req.Side
	if side == "" {
		side = domain.OrderSideSell
	}

	payload, err := json.Marshal(orderRequest{
		ProductID:   productID,
		LimitPrice:  decimal.NewFromFloat(req.LimitPrice).String(),
		Size:        decimal.NewFromFloat(req.Size).String(),
		Side:        string(side),
		OrderType:   c.cfg.OrderType,
		TimeInForce: c.cfg.TimeInForce,
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("delta: marshal order: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, "/v2/orders", payload, true)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("delta: place order: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.OrderResult{}, fmt.Errorf("delta: place order: status %d: decode: %w", status, err)
	}
	if !env.Success || status >= 300 {
		msg := errorCode(env.Error)
		if msg == "" {
			msg = fmt.Sprintf("http status %d", status)
		}
		return domain.OrderResult{Success: false, Message: msg}, nil
	}

	var o Order
	if err := json.Unmarshal(env.Result, &o); err != nil {
		return domain.OrderResult{}, fmt.Errorf("delta: decode order: %w", err)
	}
	return toOrderResult(o, req.Size), nil
}

func toOrderResult(o Order, requested float64) domain.OrderResult {
	size := requested
	if s, err := decimal.NewFromString(o.Size.String()); err == nil {
		size = s.InexactFloat64()
	}
	res := domain.OrderResult{
		Success: true,
		OrderID: strconv.FormatInt(o.ID, 10),
		Side:    domain.OrderSide(strings.ToLower(o.Side)),
		Size:    size,
		Status:  domain.OrderStatus(strings.ToLower(o.State)),
		Symbol:  o.ProductSymbol,
	}
	if t, err := time.Parse(time.RFC3339Nano, o.CreatedAt); err == nil {
		res.CreatedAt = t
	}
	return res
}

// do performs a request and returns the raw body and status code. Non-2xx
// statuses are not treated as errors here because Delta reports rejections
// in the body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, signed bool) ([]byte, int, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hedgebot")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		for k, v := range c.auth.DeltaHeaders(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func errorCode(e *apiError) string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code
	}
	return e.Message
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
