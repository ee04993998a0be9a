// Package redis implements the hedgebot price cache, evaluation lock, rate
// limiter and event bus on go-redis/v9. Every key and channel lives under the
// "hedgebot:" namespace so several deployments can share one server by DB.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const namespace = "hedgebot"

// Connection timeouts. Adapters are called from the evaluation loop, so a
// stalled server must fail the call instead of stalling the tick.
const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 3 * time.Second
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client is the connection shared by every adapter in this package.
type Client struct {
	rdb  *redis.Client
	addr string
}

// New connects to cfg.Addr and verifies the connection with a PING.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: connect: empty addr")
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := NewFromClient(redis.NewClient(opts))
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// NewFromClient wraps an existing go-redis client without pinging it.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, addr: rdb.Options().Addr}
}

// Ping reports whether the server answers. It backs the /api/health check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.addr, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// key joins parts under the namespace: key("price", "BTC") is
// "hedgebot:price:BTC".
func key(parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}
