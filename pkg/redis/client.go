// Package redis provides a thin wrapper around go-redis/v9 used as the shared
// cross-process seen-URL cache. The set operations are the atomic
// add-if-absent primitive the deduplicator relies on: SADD reports whether
// the caller was the first process to mark a URL.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/websift/dedup-engine/pkg/config"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// SetAdd adds a member to a set and reports whether this call inserted it
// (false means some process had already marked it).
func (c *Client) SetAdd(ctx context.Context, key, member string) (bool, error) {
	added, err := c.rdb.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", key, err)
	}
	return added > 0, nil
}

// SetContains reports whether member is in the set at key.
func (c *Client) SetContains(ctx context.Context, key, member string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

// SetSize returns the cardinality of the set at key.
func (c *Client) SetSize(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", key, err)
	}
	return n, nil
}

// Expire sets the eviction horizon on a key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return err == redis.Nil
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
