// Package ristretto implements memory.KeyValueCache in process on top of
// dgraph-io/ristretto.
package ristretto

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// Config sizes the cache.
type Config struct {
	// MaxCost is the total size budget in bytes (default: 64 MiB).
	MaxCost int64 `yaml:"max_cost"`

	// NumCounters should be about 10x the expected number of entries
	// (default: 100k).
	NumCounters int64 `yaml:"num_counters"`
}

// Cache is an in-process TTL cache. Ristretto hashes keys, so a side
// index of live keys backs ListByPrefix.
type Cache struct {
	store *ristretto.Cache

	mu   sync.Mutex
	keys map[string]struct{}
}

var _ memory.KeyValueCache = (*Cache)(nil)

// New creates a cache.
func New(cfg Config) (*Cache, error) {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 64 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &Cache{store: store, keys: make(map[string]struct{})}, nil
}

// Get returns a copy of the cached bytes.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Put stores value for ttl and waits until it is readable. A non-positive
// ttl keeps the entry until it is evicted.
func (c *Cache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	val := append([]byte(nil), value...)
	if !c.store.SetWithTTL(key, val, int64(len(val))+int64(len(key)), ttl) {
		return fmt.Errorf("ristretto rejected key %q", key)
	}
	c.store.Wait()

	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.store.Del(key)
	c.store.Wait()

	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
	return nil
}

// ListByPrefix returns live keys starting with prefix. Keys that expired
// or were evicted are dropped from the index as they are found.
func (c *Cache) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for key := range c.keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := c.store.Get(key); !ok {
			delete(c.keys, key)
			continue
		}
		out = append(out, key)
	}
	return out, nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() error {
	c.store.Close()
	return nil
}
