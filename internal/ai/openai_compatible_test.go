package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: srv.URL + "/v1", APIKey: "secret", Model: "llama3:latest"}
	got, err := c.Complete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
	assert.Equal(t, "llama3:latest", gotBody["model"])
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient()
	_, err := c.Complete(context.Background(), ChatConfig{BaseURL: srv.URL + "/v1", Model: "nope"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestCompleteUnreachable(t *testing.T) {
	c := NewOpenAICompatibleClient()
	_, err := c.Complete(context.Background(), ChatConfig{BaseURL: "http://127.0.0.1:1/v1", Model: "m"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "nomic-embed-text", body["model"])
		assert.Equal(t, "query text", body["input"])
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text"}
	vec, err := c.Embed(context.Background(), cfg, "query text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1]},{"embedding":[2]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: srv.URL + "/v1", Model: "m"}
	vecs, err := c.EmbedBatch(context.Background(), cfg, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1}, vecs[0])
}

func TestEmbedEmptyInput(t *testing.T) {
	c := NewOpenAICompatibleClient()
	_, err := c.Embed(context.Background(), EmbeddingConfig{BaseURL: "http://unused", Model: "m"}, "   ")
	assert.Error(t, err)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"llama3:latest"},{"name":"mistral"},{"id":""}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient()
	ids, err := c.ListModels(context.Background(), ChatConfig{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "mistral"}, ids)
}
