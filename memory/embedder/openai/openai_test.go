package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/cogbase/memory/embedder/openai"
)

func embeddingServer(t *testing.T, vec []float32, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"hello world"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
			"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedder_Embed(t *testing.T) {
	calls := 0
	srv := embeddingServer(t, []float32{0.6, 0.8, 0}, &calls)

	e, err := openai.New(openai.Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Dimensions: 3,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8, 0}, vec)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, 1, calls)
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	calls := 0
	srv := embeddingServer(t, []float32{1, 0}, &calls)

	e, err := openai.New(openai.Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Dimensions: 3,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello world")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	assert.Error(t, err)
}
