package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/sqlstore"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.Config{Path: filepath.Join(t.TempDir(), "data", "memory.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRecord(id, content, session string, at time.Time) *memory.Record {
	ctx, _ := memory.ParseMetadata([]byte(`{"source":"test","rank":2}`))
	return &memory.Record{
		ID:          id,
		Content:     content,
		Timestamp:   at,
		SessionID:   session,
		Tags:        []string{"a", "b"},
		Context:     ctx,
		Embedding:   []float32{0.1, 0.2, 0.3},
		ContentHash: memory.ContentHash(content),
		UpdatedAt:   at,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	at := base.Add(123456789 * time.Nanosecond)
	want := newRecord("m1", "Cats are mammals", "s1", at)
	require.NoError(t, s.InsertOrReplace(ctx, want))

	got, err := s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, want.Content, got.Content)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, []string{"source", "rank"}, got.Context.Keys())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, want.ContentHash, got.ContentHash)

	byHash, err := s.GetByHash(ctx, memory.ContentHash("  CATS are mammals "))
	require.NoError(t, err)
	assert.Equal(t, "m1", byHash.ID)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, memory.ErrNotFound))

	_, err = s.GetByHash(ctx, "deadbeef")
	assert.True(t, errors.Is(err, memory.ErrNotFound))

	removed, err := s.DeleteByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_InsertOrReplace(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.InsertOrReplace(ctx, newRecord("m1", "first", "s1", base)))

	updated := newRecord("m1", "second", "s2", base)
	updated.Tags = nil
	updated.Embedding = nil
	updated.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.InsertOrReplace(ctx, updated))

	got, err := s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
	assert.Equal(t, "s2", got.SessionID)
	assert.Empty(t, got.Tags)
	assert.Nil(t, got.Embedding)
	assert.True(t, base.Add(time.Hour).Equal(got.UpdatedAt))

	all, err := s.Query(ctx, memory.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.InsertOrReplace(ctx, newRecord("m1", "x", "s1", base)))

	removed, err := s.DeleteByID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.GetByID(ctx, "m1")
	assert.True(t, errors.Is(err, memory.ErrNotFound))
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	recs := []*memory.Record{
		newRecord("m1", "alpha Beta", "s1", base),
		newRecord("m2", "beta gamma", "s1", base.Add(time.Minute)),
		newRecord("m3", "gamma delta", "s2", base.Add(2*time.Minute)),
		newRecord("m4", "no vector beta", "s2", base.Add(3*time.Minute)),
	}
	recs[3].Embedding = nil
	for _, r := range recs {
		require.NoError(t, s.InsertOrReplace(ctx, r))
	}

	ids := func(rs []*memory.Record) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	tests := []struct {
		name string
		q    memory.Query
		want []string
	}{
		{"all newest first", memory.Query{}, []string{"m4", "m3", "m2", "m1"}},
		{"ascending", memory.Query{Ascending: true}, []string{"m1", "m2", "m3", "m4"}},
		{"session", memory.Query{SessionID: "s1"}, []string{"m2", "m1"}},
		{"contains is case sensitive", memory.Query{Contains: "beta"}, []string{"m4", "m2"}},
		{"contains upper", memory.Query{Contains: "Beta"}, []string{"m1"}},
		{"with embedding", memory.Query{WithEmbedding: true, SessionID: "s2"}, []string{"m3"}},
		{"since", memory.Query{Since: base.Add(2 * time.Minute)}, []string{"m4", "m3"}},
		{"limit", memory.Query{Limit: 2}, []string{"m4", "m3"}},
		{"no match", memory.Query{Contains: "zeta"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("omit embedding", func(t *testing.T) {
		got, err := s.Query(ctx, memory.Query{OmitEmbedding: true, SessionID: "s1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, r := range got {
			assert.Nil(t, r.Embedding)
			assert.NotEmpty(t, r.Content)
		}
	})
}

func TestStore_EnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	for i := 0; i < 2; i++ {
		s, err := sqlstore.Open(sqlstore.Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, s.EnsureSchema(ctx))
		require.NoError(t, s.EnsureSchema(ctx))
		if i == 0 {
			require.NoError(t, s.InsertOrReplace(ctx, newRecord("m1", "kept", "s1", base)))
		} else {
			got, err := s.GetByID(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, "kept", got.Content)
		}
		require.NoError(t, s.Close())
	}
}

func TestStore_StorageError(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	_, err := s.Query(context.Background(), memory.Query{})
	require.Error(t, err)
	assert.True(t, memory.IsStorageError(err))
}

func TestOpen_Validation(t *testing.T) {
	_, err := sqlstore.Open(sqlstore.Config{Driver: "mysql", Path: "x"})
	assert.Error(t, err)

	_, err = sqlstore.Open(sqlstore.Config{})
	assert.Error(t, err)

	_, err = sqlstore.Open(sqlstore.Config{Driver: sqlstore.DriverPostgres})
	assert.Error(t, err)
}
