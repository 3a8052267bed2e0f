// Package fallback wraps a primary embedder so that embedding never fails.
//
// When the primary errors, times out or returns a vector of the wrong size,
// a deterministic pseudo-random unit vector derived from the text is used
// instead. Fallback vectors carry no meaning, but the same text always
// produces the same vector, so exact repeats still match.
package fallback

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultDimensions matches all-MiniLM-L6-v2.
	DefaultDimensions = 384

	// DefaultTimeout bounds one primary call.
	DefaultTimeout = 10 * time.Second

	// MaxInputRunes is the preprocessed text length sent to the primary.
	MaxInputRunes = 1500
)

// Primary is the real embedding backend.
type Primary interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config configures a Provider.
type Config struct {
	// Dimensions is the vector size. Default: the primary's, else 384.
	Dimensions int

	// Timeout bounds one primary call. Default: 10s.
	Timeout time.Duration

	Logger logrus.FieldLogger
}

// Provider embeds with the primary and falls back on any failure.
type Provider struct {
	primary Primary
	dims    int
	timeout time.Duration
	log     logrus.FieldLogger
}

// New creates a Provider. primary may be nil, in which case every vector
// comes from the deterministic fallback.
func New(primary Primary, cfg Config) *Provider {
	dims := cfg.Dimensions
	if dims <= 0 && primary != nil {
		dims = primary.Dimensions()
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Provider{
		primary: primary,
		dims:    dims,
		timeout: timeout,
		log:     log.WithField("component", "embedder"),
	}
}

// Embed never returns an error.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := Preprocess(text)
	if p.primary == nil {
		return Deterministic(clean, p.dims), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	vec, err := p.primary.Embed(callCtx, clean)
	switch {
	case err != nil:
		p.log.WithError(err).Warn("primary embedding failed, using deterministic fallback")
	case len(vec) == 0:
		p.log.Warn("primary returned an empty embedding, using deterministic fallback")
	case len(vec) != p.dims:
		p.log.WithFields(logrus.Fields{
			"got":  len(vec),
			"want": p.dims,
		}).Warn("primary embedding has wrong dimensions, using deterministic fallback")
	default:
		return vec, nil
	}
	return Deterministic(clean, p.dims), nil
}

// Dimensions returns the embedding size.
func (p *Provider) Dimensions() int {
	return p.dims
}

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?;:'"()\-]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Preprocess strips characters outside letters, digits, whitespace and
// basic punctuation, collapses whitespace and truncates to MaxInputRunes.
func Preprocess(text string) string {
	text = disallowed.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if r := []rune(text); len(r) > MaxInputRunes {
		text = string(r[:MaxInputRunes])
	}
	return text
}

// Deterministic derives a unit vector from text. The FNV-1a hash of the
// text seeds a 64-bit linear congruential generator stepped once per
// dimension.
func Deterministic(text string, dims int) []float32 {
	if dims <= 0 {
		dims = DefaultDimensions
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
