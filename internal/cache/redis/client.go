// Package redis implements the shared cache, lock, rate limiter, signal bus
// and a commitment store on go-redis/v9. It is optional; without it the
// process falls back to in-memory equivalents.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes keys, streams and channels when ClientConfig
// leaves Namespace empty.
const DefaultNamespace = "darkpool"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace separates deployments sharing one server, e.g. testnet and
	// mainnet clients of the same contract.
	Namespace   string
	DialTimeout time.Duration
}

// keyspace builds namespaced key names: keyspace("darkpool").key("market", "7")
// is "darkpool:market:7".
type keyspace string

func (k keyspace) key(parts ...string) string {
	return string(k) + ":" + strings.Join(parts, ":")
}

// Client owns the connection pool shared by every redis-backed component.
type Client struct {
	rdb  *redis.Client
	keys keyspace
}

// New connects and pings. It fails fast so a misconfigured cache is reported
// at startup rather than on the first action.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	ns := strings.Trim(cfg.Namespace, ":")
	if ns == "" {
		ns = DefaultNamespace
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, keys: keyspace(ns)}, nil
}

// Ping checks the connection and reports pool exhaustion, which shows up as
// lock and cache timeouts long before the server itself is unreachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	if st := c.rdb.PoolStats(); st.Timeouts > 0 && st.IdleConns == 0 && st.TotalConns >= uint32(c.rdb.Options().PoolSize) {
		return fmt.Errorf("redis: pool exhausted (%d conns, %d timeouts)", st.TotalConns, st.Timeouts)
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

// Namespace returns the key prefix in use.
func (c *Client) Namespace() string {
	return string(c.keys)
}
