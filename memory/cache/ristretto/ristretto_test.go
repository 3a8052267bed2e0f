package ristretto_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/cache/ristretto"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(ristretto.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("hello")
	require.NoError(t, c.Put(ctx, "k", value, time.Minute))
	value[0] = 'j'

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Put(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "short")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	keys, err := c.ListByPrefix(ctx, "sh")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCache_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	for _, k := range []string{"stats:sessions", "stats:analysis:s1", "record:1"} {
		require.NoError(t, c.Put(ctx, k, []byte("1"), time.Minute))
	}
	require.NoError(t, c.Delete(ctx, "stats:analysis:s1"))

	keys, err := c.ListByPrefix(ctx, "stats:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"stats:sessions"}, keys)
}
