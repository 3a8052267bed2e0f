package fallback_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/embedder/fallback"
)

type stubPrimary struct {
	vec   []float32
	err   error
	dims  int
	delay time.Duration
	got   string
}

func (s *stubPrimary) Embed(ctx context.Context, text string) ([]float32, error) {
	s.got = text
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vec, s.err
}

func (s *stubPrimary) Dimensions() int { return s.dims }

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	return log, hook
}

func TestDeterministic_Stable(t *testing.T) {
	a := fallback.Deterministic("the quick brown fox", 384)
	b := fallback.Deterministic("the quick brown fox", 384)
	c := fallback.Deterministic("the quick brown dog", 384)

	require.Len(t, a, 384)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestDeterministic_DefaultDimensions(t *testing.T) {
	assert.Len(t, fallback.Deterministic("x", 0), fallback.DefaultDimensions)
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  hello \n\t world  ", "hello world"},
		{"strips symbols", "cost: $5 #tag @user", "cost: 5 tag user"},
		{"keeps punctuation", `Is it "fine" (really)? Yes-ish!`, `Is it "fine" (really)? Yes-ish!`},
		{"keeps unicode letters", "café über", "café über"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fallback.Preprocess(tt.in))
		})
	}
}

func TestPreprocess_Truncates(t *testing.T) {
	got := fallback.Preprocess(strings.Repeat("é", 2000))
	assert.Equal(t, fallback.MaxInputRunes, len([]rune(got)))
}

func TestProvider_UsesPrimary(t *testing.T) {
	primary := &stubPrimary{vec: []float32{0.6, 0.8, 0}, dims: 3}
	log, _ := quietLogger()
	p := fallback.New(primary, fallback.Config{Logger: log})

	vec, err := p.Embed(context.Background(), "  hello   world ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8, 0}, vec)
	assert.Equal(t, "hello world", primary.got)
	assert.Equal(t, 3, p.Dimensions())
}

func TestProvider_FallsBack(t *testing.T) {
	tests := []struct {
		name    string
		primary *stubPrimary
	}{
		{"error", &stubPrimary{err: errors.New("connection refused"), dims: 8}},
		{"empty", &stubPrimary{vec: []float32{}, dims: 8}},
		{"wrong dimensions", &stubPrimary{vec: []float32{1, 0}, dims: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, hook := quietLogger()
			p := fallback.New(tt.primary, fallback.Config{Logger: log})

			vec, err := p.Embed(context.Background(), "some text")
			require.NoError(t, err)
			assert.Equal(t, fallback.Deterministic("some text", 8), vec)
			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		})
	}
}

func TestProvider_Timeout(t *testing.T) {
	primary := &stubPrimary{vec: make([]float32, 4), dims: 4, delay: time.Second}
	log, _ := quietLogger()
	p := fallback.New(primary, fallback.Config{Timeout: 10 * time.Millisecond, Logger: log})

	start := time.Now()
	vec, err := p.Embed(context.Background(), "slow")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, fallback.Deterministic("slow", 4), vec)
}

func TestProvider_NoPrimary(t *testing.T) {
	p := fallback.New(nil, fallback.Config{})
	assert.Equal(t, fallback.DefaultDimensions, p.Dimensions())

	vec, err := p.Embed(context.Background(), "offline")
	require.NoError(t, err)
	assert.Equal(t, fallback.Deterministic("offline", fallback.DefaultDimensions), vec)
}
