package redis_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/cache/redis"
)

func newCache(t *testing.T, namespace string) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.New(client, namespace), mr
}

func TestCache_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, "")

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "k", []byte(`{"a":1}`), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(val))

	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t, "")

	require.NoError(t, c.Put(ctx, "short", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t, "ns:")

	for _, k := range []string{"stats:sessions", "stats:analysis:*", "record:1", "memory:1"} {
		require.NoError(t, c.Put(ctx, k, []byte("1"), time.Minute))
	}
	require.NoError(t, mr.Set("stats:outside-namespace", "1"))

	keys, err := c.ListByPrefix(ctx, "stats:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"stats:analysis:*", "stats:sessions"}, keys)

	assert.True(t, mr.Exists("ns:record:1"))
}

func TestCache_Unavailable(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t, "")
	mr.Close()

	_, _, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Put(ctx, "k", []byte("v"), time.Minute))
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := redis.Open(context.Background(), redis.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = redis.Open(context.Background(), redis.Config{URL: "not a url"})
	assert.Error(t, err)
}
