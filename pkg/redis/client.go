package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/clv-retention/pkg/config"
)

// Namespace prefixes every key the retention service writes
const Namespace = "clv"

const (
	clientName  = "clv-retention"
	pingTimeout = 5 * time.Second
)

// Client wraps the optional prediction cache and rate-limit connection.
// A disabled client turns every cache call into a miss and every limit check
// into a pass.
// ⭐ SSOT: the Redis connection is managed only here
type Client struct {
	rdb     *redis.Client
	addr    string
	enabled bool
}

// New connects to the configured Redis. It fails when Redis is enabled but
// does not answer a PING within five seconds.
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false}, nil
	}

	addr := net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: clientName,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}

	return &Client{rdb: rdb, addr: addr, enabled: true}, nil
}

// Wrap adopts an existing go-redis client. nil yields a disabled client.
func Wrap(rdb *redis.Client) *Client {
	if rdb == nil {
		return &Client{}
	}
	return &Client{rdb: rdb, addr: rdb.Options().Addr, enabled: true}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c.enabled
}

// Addr is host:port, empty when disabled
func (c *Client) Addr() string {
	return c.addr
}

// Ping checks the connection. A disabled client is always healthy.
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
