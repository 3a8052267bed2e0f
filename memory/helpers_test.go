package memory_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/sqlstore"
)

// trigramEmbedder hashes lowercase character trigrams into buckets, so
// texts sharing words land close together.
type trigramEmbedder struct {
	dims int
	fail bool
}

func (e *trigramEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("model unavailable")
	}
	vec := make([]float32, e.dims)
	r := []rune(strings.ToLower(text))
	for i := 0; i+3 <= len(r); i++ {
		h := fnv.New32a()
		h.Write([]byte(string(r[i : i+3])))
		vec[h.Sum32()%uint32(e.dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (e *trigramEmbedder) Dimensions() int { return e.dims }

// mapCache is an in-memory KeyValueCache that can be switched to fail.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	fail    bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

var errCacheDown = errors.New("cache unavailable")

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, false, errCacheDown
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errCacheDown
	}
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errCacheDown
	}
	delete(c.entries, key)
	return nil
}

func (c *mapCache) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errCacheDown
	}
	var keys []string
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// clock hands out increasing times, one step per call.
type clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newClock(start time.Time) *clock {
	return &clock{now: start, step: time.Second}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var day0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mgr   *memory.Manager
	store *sqlstore.Store
	cache *mapCache
	emb   *trigramEmbedder
	clock *clock
	hook  *test.Hook
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store, err := sqlstore.Open(sqlstore.Config{
		Path:   filepath.Join(t.TempDir(), "memory.db"),
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store: store,
		cache: newMapCache(),
		emb:   &trigramEmbedder{dims: 512},
		clock: newClock(day0),
		hook:  hook,
	}

	all := append([]memory.Option{
		memory.WithLogger(logger),
		memory.WithClock(f.clock.Now),
	}, opts...)
	f.mgr, err = memory.NewManager(store, f.emb, f.cache, all...)
	require.NoError(t, err)
	return f
}

func (f *fixture) mustStore(t *testing.T, in memory.StoreInput) string {
	t.Helper()
	res, err := f.mgr.Store(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, memory.StatusStored, res.Status)
	return res.MemoryID
}
