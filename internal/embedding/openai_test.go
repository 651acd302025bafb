package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingServer(t *testing.T, dimension int, handler func(req embeddingRequest) embeddingResponse) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(req)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func constantVector(dimension int, fill float32) []float32 {
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = fill
	}
	return vec
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	const dim = 4

	srv := newEmbeddingServer(t, dim, func(req embeddingRequest) embeddingResponse {
		resp := embeddingResponse{Object: "list", Model: req.Model}
		// Respond out of order; the client must re-sort by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Object:    "embedding",
				Embedding: constantVector(dim, float32(i)),
				Index:     i,
			})
		}
		return resp
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIBase: srv.URL, Model: "test-model", Dimension: dim})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range out {
		assert.Equal(t, constantVector(dim, float32(i)), out[i])
	}
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv := newEmbeddingServer(t, 4, func(req embeddingRequest) embeddingResponse {
		return embeddingResponse{
			Data: []embeddingData{{Embedding: constantVector(7, 0), Index: 0}},
		}
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIBase: srv.URL, Dimension: 4})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIBase: srv.URL, Dimension: 4})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "status=503")
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIBase: "http://unused", Dimension: 4})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
