// Package openai embeds text through an OpenAI-compatible /embeddings
// endpoint. Any server speaking the same API works (OpenAI, Ollama, vLLM,
// LiteLLM) by pointing BaseURL at it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Embedding models and their native dimensions.
const (
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"

	DefaultModel      = ModelTextEmbedding3Small
	DefaultDimensions = 384
)

// Config configures the embedder.
type Config struct {
	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string

	// BaseURL defaults to https://api.openai.com/v1/.
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimensions is the expected vector size (default: 384).
	Dimensions int

	// RequestDimensions asks the server to shorten vectors to Dimensions.
	// Only the text-embedding-3 family supports it.
	RequestDimensions bool

	HTTPClient *http.Client
}

// Embedder calls the embeddings API. It performs no retries; the caller
// decides what a failure means.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
	request    bool
}

// New creates an Embedder.
func New(cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Embedder{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		request:    cfg.RequestDimensions,
	}
}

// Embed returns the vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.request {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the expected vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
