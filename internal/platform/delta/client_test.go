package delta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const productsBody = `{"success":true,"result":[
	{"id":27,"symbol":"BTCUSD","contract_type":"perpetual_futures","state":"live"},
	{"id":3136,"symbol":"ETHUSD","contract_type":"perpetual_futures","state":"live"}]}`

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL:      url,
		APIKey:       "key",
		APISecret:    "secret",
		SymbolSuffix: "USD",
		Timeout:      time.Second,
	})
}

func TestProductSymbol(t *testing.T) {
	c := NewClient(Config{SymbolSuffix: "usd", SymbolMap: map[string]string{"XBT": "btcusd"}})
	assert.Equal(t, "ETHUSD", c.ProductSymbol(" eth "))
	assert.Equal(t, "BTCUSD", c.ProductSymbol("xbt"))
}

func TestResolveProductIDCachesProducts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/products", r.URL.Path)
		calls.Add(1)
		_, _ = w.Write([]byte(productsBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.ResolveProductID(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "27", id)

	id, err = c.ResolveProductID(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "3136", id)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolveProductIDUnknownAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(productsBody))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ResolveProductID(context.Background(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrNoProductID)
}

func TestResolveProductIDStaleCacheOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(productsBody))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	_, err := c.ResolveProductID(context.Background(), "BTC")
	require.NoError(t, err)

	fail.Store(true)
	now = now.Add(time.Hour)
	id, err := c.ResolveProductID(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "27", id)
}

func TestResolveProductIDFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ResolveProductID(context.Background(), "BTC")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoProductID)
}

func TestPlaceHedgeOrderSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		ts := r.Header.Get("timestamp")
		assert.Equal(t, "key", r.Header.Get("api-key"))
		assert.Equal(t, crypto.Sign("secret", ts, http.MethodPost, "/v2/orders", string(body)), r.Header.Get("signature"))

		var got map[string]any
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, float64(27), got["product_id"])
		assert.Equal(t, "0.5", got["size"])
		assert.Equal(t, "60000", got["limit_price"])
		assert.Equal(t, "sell", got["side"])
		assert.Equal(t, "limit_order", got["order_type"])
		assert.Equal(t, "gtc", got["time_in_force"])

		_, _ = w.Write([]byte(`{"success":true,"result":{"id":9911,"product_id":27,"product_symbol":"BTCUSD",
			"size":"0.5","side":"sell","state":"open","created_at":"2024-03-01T10:00:00Z"}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).PlaceHedgeOrder(context.Background(), domain.HedgeOrderRequest{
		ProductID:  "27",
		Asset:      "BTC",
		Side:       domain.OrderSideSell,
		Size:       0.5,
		LimitPrice: 60000,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "9911", res.OrderID)
	assert.Equal(t, domain.OrderSideSell, res.Side)
	assert.Equal(t, domain.OrderStatusOpen, res.Status)
	assert.InDelta(t, 0.5, res.Size, 1e-12)
	assert.Equal(t, "BTCUSD", res.Symbol)
	assert.False(t, res.CreatedAt.IsZero())
}

func TestPlaceHedgeOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"insufficient_margin","context":{}}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).PlaceHedgeOrder(context.Background(), domain.HedgeOrderRequest{
		ProductID: "27", Size: 1, LimitPrice: 100,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient_margin", res.Message)
}

func TestPlaceHedgeOrderInvalidRequest(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	_, err := c.PlaceHedgeOrder(context.Background(), domain.HedgeOrderRequest{ProductID: "abc", Size: 1, LimitPrice: 1})
	assert.Error(t, err)

	_, err = c.PlaceHedgeOrder(context.Background(), domain.HedgeOrderRequest{ProductID: "27", Size: 0, LimitPrice: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
}

func TestPlaceHedgeOrderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).PlaceHedgeOrder(context.Background(), domain.HedgeOrderRequest{
		ProductID: "27", Size: 1, LimitPrice: 100,
	})
	assert.Error(t, err)
}
