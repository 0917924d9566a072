// Package redis backs the shared rate limiter, price cache, nonce lock and
// live event bus with go-redis/v9. It is optional: without an address the
// in-process implementations in cache/memory are used.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultNamespace prefixes every key and channel so several deployments can
// share one Redis.
const defaultNamespace = "shuttle"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Namespace  string
}

// Client is a namespaced go-redis connection shared by the cache types in
// this package.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New connects and pings within five seconds.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		ClientName: defaultNamespace,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	ns := strings.Trim(cfg.Namespace, ":")
	if ns == "" {
		ns = defaultNamespace
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb, namespace: ns}, nil
}

// Key joins parts under the client namespace, e.g. "shuttle:price:bitcoin".
func (c *Client) Key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
