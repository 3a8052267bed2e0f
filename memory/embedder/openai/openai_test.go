package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/embedder/openai"
)

func embeddingServer(t *testing.T, status int, vec []float64, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-model",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedder_Embed(t *testing.T) {
	var body map[string]any
	srv := embeddingServer(t, http.StatusOK, []float64{0.25, -0.5, 1}, &body)

	e := openai.New(openai.Config{
		APIKey:            "test-key",
		BaseURL:           srv.URL + "/v1",
		Model:             "test-model",
		Dimensions:        3,
		RequestDimensions: true,
	})

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, 3, e.Dimensions())

	assert.Equal(t, "hello world", body["input"])
	assert.Equal(t, "test-model", body["model"])
	assert.EqualValues(t, 3, body["dimensions"])
}

func TestEmbedder_OmitsDimensionsByDefault(t *testing.T) {
	var body map[string]any
	srv := embeddingServer(t, http.StatusOK, []float64{1}, &body)

	e := openai.New(openai.Config{BaseURL: srv.URL + "/v1/", Dimensions: 1})
	_, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)

	_, ok := body["dimensions"]
	assert.False(t, ok)
	assert.Equal(t, openai.DefaultModel, body["model"])
}

func TestEmbedder_ServerError(t *testing.T) {
	srv := embeddingServer(t, http.StatusInternalServerError, nil, nil)

	e := openai.New(openai.Config{BaseURL: srv.URL + "/v1"})
	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
}

func TestEmbedder_Defaults(t *testing.T) {
	e := openai.New(openai.Config{})
	assert.Equal(t, openai.DefaultDimensions, e.Dimensions())
}
