package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// PriceCache implements domain.PriceCache. Each asset's last spot price is a
// hash at "hedgebot:price:<ASSET>" with fields "price" and "ts" (Unix nanos)
// that expires after ttl.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A
// non-positive ttl keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(asset string) string {
	return key("price", domain.NormalizeAsset(asset))
}

// SetPrice stores the latest price and its observation time.
func (pc *PriceCache) SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error {
	key := priceKey(asset)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return nil
}

// GetPrice returns the cached price and its timestamp, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, asset string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	price, ts, err := parsePrice(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	return price, ts, nil
}

// GetPrices returns cached prices for several assets in one round trip.
// Missing or malformed entries are omitted. Keys are the normalized assets.
func (pc *PriceCache) GetPrices(ctx context.Context, assets []string) (map[string]float64, error) {
	if len(assets) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(assets))
	for _, a := range assets {
		cmds[domain.NormalizeAsset(a)] = pipe.HGetAll(ctx, priceKey(a))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	result := make(map[string]float64, len(cmds))
	for asset, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, err := parsePrice(vals); err == nil {
			result[asset] = price
		}
	}
	return result, nil
}

func parsePrice(vals map[string]string) (float64, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price: %w", err)
	}
	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		nanos, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("parse ts: %w", err)
		}
		ts = time.Unix(0, nanos)
	}
	return price, ts, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
