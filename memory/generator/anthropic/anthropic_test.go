package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/generator/anthropic"
)

func messagesServer(t *testing.T, status int, content []map[string]any, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"content":       content,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerator_Generate(t *testing.T) {
	var body map[string]any
	srv := messagesServer(t, http.StatusOK, []map[string]any{
		{"type": "text", "text": "The session covered "},
		{"type": "text", "text": "pet facts."},
	}, &body)

	g := anthropic.New(anthropic.Config{APIKey: "test", BaseURL: srv.URL, Model: "claude-test", MaxTokens: 50})
	text, err := g.Generate(context.Background(), "Summarize this")
	require.NoError(t, err)
	assert.Equal(t, "The session covered pet facts.", text)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 50, body["max_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestGenerator_NoText(t *testing.T) {
	srv := messagesServer(t, http.StatusOK, []map[string]any{}, nil)

	g := anthropic.New(anthropic.Config{APIKey: "test", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), "x")
	assert.Error(t, err)
}

func TestGenerator_APIError(t *testing.T) {
	srv := messagesServer(t, http.StatusInternalServerError, nil, nil)

	g := anthropic.New(anthropic.Config{APIKey: "test", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude API error")
}
