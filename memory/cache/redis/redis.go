// Package redis implements memory.KeyValueCache on Redis, so several
// processes can share one cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-memory/memory"
)

const scanBatch = 100

// Config configures the cache.
type Config struct {
	// URL is a redis:// or rediss:// URL.
	URL string `yaml:"url"`

	// Namespace is prepended to every key, e.g. "nim-memory:".
	Namespace string `yaml:"namespace"`
}

// Cache is a Redis-backed TTL cache.
type Cache struct {
	client    redis.UniversalClient
	namespace string
	owned     bool
}

var _ memory.KeyValueCache = (*Cache)(nil)

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	c := New(client, cfg.Namespace)
	c.owned = true
	return c, nil
}

// New wraps an existing client. Close leaves it open.
func New(client redis.UniversalClient, namespace string) *Cache {
	return &Cache{client: client, namespace: namespace}
}

// Get returns ok == false on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put stores value for ttl. A non-positive ttl keeps the key until evicted.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.namespace+key, value, ttl).Err()
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.namespace+key).Err()
}

// ListByPrefix scans for keys starting with prefix and returns them
// without the namespace.
func (c *Cache) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(c.namespace+prefix) + "*"

	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), c.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the client if Open created it.
func (c *Cache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
