package memory

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache key prefixes.
const (
	projectionPrefix = "memory:"
	recordPrefix     = "record:"
	statsPrefix      = "stats:"
)

// ReadThrough fronts a KeyValueCache with JSON encoding and failure
// absorption. Cache errors are logged and treated as misses; they never
// fail the surrounding operation. A nil cache disables caching.
type ReadThrough struct {
	kv  KeyValueCache
	log logrus.FieldLogger
}

// NewReadThrough wraps kv. kv may be nil.
func NewReadThrough(kv KeyValueCache, log logrus.FieldLogger) *ReadThrough {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReadThrough{kv: kv, log: log.WithField("layer", "cache")}
}

// Fetch returns the cached value under key, or runs loader and caches its
// result for ttl. Loader errors are returned as-is and nothing is cached.
func Fetch[T any](ctx context.Context, rt *ReadThrough, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	if rt != nil && rt.kv != nil {
		if raw, ok := rt.lookup(ctx, key); ok {
			var cached T
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			rt.log.WithField("key", key).Debug("discarding undecodable cache entry")
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return value, err
	}

	if rt != nil {
		rt.Remember(ctx, key, value, ttl)
	}
	return value, nil
}

// Remember stores value under key, logging instead of failing.
func (rt *ReadThrough) Remember(ctx context.Context, key string, value any, ttl time.Duration) {
	if rt.kv == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		rt.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return
	}
	if err := rt.kv.Put(ctx, key, raw, ttl); err != nil {
		rt.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// Evict removes the given keys.
func (rt *ReadThrough) Evict(ctx context.Context, keys ...string) {
	if rt.kv == nil {
		return
	}
	for _, key := range keys {
		if err := rt.kv.Delete(ctx, key); err != nil {
			rt.log.WithError(err).WithField("key", key).Warn("cache delete failed")
		}
	}
}

// EvictPrefix removes every key starting with prefix and returns how many
// were removed.
func (rt *ReadThrough) EvictPrefix(ctx context.Context, prefix string) int {
	if rt.kv == nil {
		return 0
	}
	keys, err := rt.kv.ListByPrefix(ctx, prefix)
	if err != nil {
		rt.log.WithError(err).WithField("prefix", prefix).Warn("cache prefix scan failed")
		return 0
	}
	rt.Evict(ctx, keys...)
	return len(keys)
}

func (rt *ReadThrough) lookup(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := rt.kv.Get(ctx, key)
	if err != nil {
		rt.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return nil, false
	}
	return raw, ok
}

func projectionKey(id string) string { return projectionPrefix + id }
func recordKey(id string) string     { return recordPrefix + id }

func statsKey(parts ...string) string {
	return statsPrefix + strings.Join(parts, ":")
}
