package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingsServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-model",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
			},
			"usage": map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		Model:    "test-model",
		Timeout:  2 * time.Second,
		Attempts: 3,
		Delay:    time.Millisecond,
		MaxDelay: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("SEMRAG_TEST_MISSING_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "SEMRAG_TEST_MISSING_KEY"})
	require.Error(t, err)
}

func TestEmbedLearnsDimension(t *testing.T) {
	srv, calls := embeddingsServer(t, 0, 0)
	c := newTestClient(t, srv.URL)

	assert.Equal(t, 0, c.Dimension())
	vec, err := c.Embed(context.Background(), "a² + b² = c²")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, c.Dimension())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "openai:test-model", c.Name())
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	srv, calls := embeddingsServer(t, 2, http.StatusServiceUnavailable)
	c := newTestClient(t, srv.URL)

	vec, err := c.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := embeddingsServer(t, 10, http.StatusBadRequest)
	c := newTestClient(t, srv.URL)

	_, err := c.Embed(context.Background(), "bad request")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
