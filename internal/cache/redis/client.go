// Package redis implements the shared-state interfaces (wallet lock, price
// cache, event bus, API rate limit) on go-redis/v9. Every key and channel is
// namespaced so several bots can share one server.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool

	// Namespace prefixes every key and channel, e.g. "memebot:ethereum".
	Namespace string
}

// Client wraps a go-redis client and the key namespace.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New connects and pings the server.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return NewFromClient(rdb, cfg.Namespace), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client, namespace string) *Client {
	return &Client{rdb: rdb, ns: namespace}
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the go-redis client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// key joins parts under the namespace.
func (c *Client) key(kind, id string) string {
	if c.ns == "" {
		return kind + ":" + id
	}
	return c.ns + ":" + kind + ":" + id
}
