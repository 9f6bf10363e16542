// Package redis wraps go-redis/v9 for the report cache. Every key the
// client touches is placed under a namespace so several deployments can
// share one Redis database, and bulk invalidation never escapes it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN and the UNLINK batch size.
const scanBatch = 200

// Client is a namespaced go-redis client.
type Client struct {
	rdb       redis.UniversalClient
	namespace string
}

// NewClient connects using cfg and waits until Redis answers PING. A few
// attempts are made so a cache container that is still starting does not
// fail the service.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	c := &Client{rdb: rdb, namespace: cfg.Namespace}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	policy := resilience.Policy{Attempts: 3, BaseDelay: 250 * time.Millisecond}
	if err := resilience.Retry(ctx, "redis ping", policy, c.Ping); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// Wrap adapts an existing go-redis client. Keys are namespaced with ns.
func Wrap(rdb redis.UniversalClient, ns string) *Client {
	return &Client{rdb: rdb, namespace: ns}
}

func (c *Client) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

// Get returns the bytes stored at key, or an error satisfying IsNilError
// when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.rdb.Get(ctx, c.key(key)).Bytes()
}

// Set stores value at key and expires it after ttl. A zero ttl keeps it.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

// FlushByPattern removes every key in the namespace matching the glob
// pattern and returns how many were removed. Keys are unlinked in
// pipelined batches as the scan proceeds.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		removed int64
		batch   = make([]string, 0, scanBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		removed += n
		batch = batch[:0]
		return err
	}

	iter := c.rdb.Scan(ctx, 0, c.key(pattern), scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("unlinking %s keys: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("unlinking %s keys: %w", pattern, err)
	}
	return removed, nil
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// IsNilError reports whether err means the key was absent.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

