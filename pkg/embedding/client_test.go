package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/retry"
)

func fastRetryConfig() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func vec1536() []float32 {
	v := make([]float32, models.EmbeddingDim)
	for i := range v {
		v[i] = 0.001 * float32(i)
	}
	return v
}

func TestEmbedBatchReturnsVectorsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedResponseItem{{Embedding: vec1536()}, {Embedding: vec1536()}}}
		resp.Usage.TotalTokens = 100
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", fastRetryConfig(), nil, nil)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Len(t, vecs[0], models.EmbeddingDim)
}

func TestEmbedRejectsMismatchedDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedResponseItem{{Embedding: []float32{0.1, 0.2}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", fastRetryConfig(), nil, nil)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func TestEmbedBatchRejectsEmptyInput(t *testing.T) {
	c := NewClient("http://unused", "key", fastRetryConfig(), nil, nil)
	_, err := c.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
}

func TestEmbedRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := embedResponse{Data: []embedResponseItem{{Embedding: vec1536()}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", fastRetryConfig(), nil, nil)
	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestEmbedDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", fastRetryConfig(), nil, nil)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
