package ragmux

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder derives a deterministic vector from the text content.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i])/255 + 0.01
	}
	return vec, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (hashEmbedder) Model() string  { return "hash-embed" }
func (hashEmbedder) Dimension() int { return 8 }

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithEmbedder(hashEmbedder{})}, opts...)
	client, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func docChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{Text: fmt.Sprintf("section %d of the syllabus", i)}
	}
	return chunks
}

func TestClientEndToEnd(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.RegisterScope(Scope{ID: "cs101", DocumentIDs: []string{"syllabus"}})

	n, err := client.Ingest(ctx, "syllabus", docChunks(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	text, status, err := client.GetContext(ctx, "cs101", "what does the syllabus cover?", 3)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.NotEmpty(t, text)

	again, status, err := client.GetContext(ctx, "cs101", "what does the syllabus cover?", 3)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
	assert.Equal(t, text, again)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.Cache.Hits)
	assert.Equal(t, 1, stats.RegisteredScopes)
	assert.Positive(t, stats.EmbedModelCalls)
}

func TestClientUnknownScopeIsEmpty(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	text, status, err := client.GetContext(ctx, "nope", "query", 0)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, StatusMiss, status)

	// Registering the scope afterwards takes effect immediately; the empty
	// answer was never cached.
	client.RegisterScope(Scope{ID: "nope", DocumentIDs: []string{"doc"}})
	_, err = client.Ingest(ctx, "doc", docChunks(1))
	require.NoError(t, err)

	text, _, err = client.GetContext(ctx, "nope", "query", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestClientReingestInvalidatesScope(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.RegisterScope(Scope{ID: "cs101", DocumentIDs: []string{"syllabus"}})
	_, err := client.Ingest(ctx, "syllabus", docChunks(3))
	require.NoError(t, err)

	_, _, err = client.GetContext(ctx, "cs101", "overview", 0)
	require.NoError(t, err)
	_, status, err := client.GetContext(ctx, "cs101", "overview", 0)
	require.NoError(t, err)
	require.Equal(t, StatusHit, status)

	// Updating the document drops the scope's cached contexts.
	_, err = client.Ingest(ctx, "syllabus", docChunks(4))
	require.NoError(t, err)

	_, status, err = client.GetContext(ctx, "cs101", "overview", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
}

func TestClientWithoutCache(t *testing.T) {
	client := newTestClient(t, WithoutCache())
	ctx := context.Background()

	client.RegisterScope(Scope{ID: "cs101", DocumentIDs: []string{"syllabus"}})
	_, err := client.Ingest(ctx, "syllabus", docChunks(2))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, status, err := client.GetContext(ctx, "cs101", "overview", 0)
		require.NoError(t, err)
		assert.Equal(t, StatusBypass, status)
	}
}

func TestClientPrefetchWarmsCache(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.RegisterScope(Scope{ID: "cs101", DocumentIDs: []string{"syllabus"}, WarmQuery: "course overview"})
	_, err := client.Ingest(ctx, "syllabus", docChunks(3))
	require.NoError(t, err)

	accepted := client.Prefetch()
	assert.Equal(t, 1, accepted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && client.Stats().Cache.Sets == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	require.Positive(t, client.Stats().Cache.Sets, "prefetch never wrote the cache")

	_, status, err := client.GetContext(ctx, "cs101", "course overview", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
}

func TestClientPrefetchSkipsScopesWithoutWarmQuery(t *testing.T) {
	client := newTestClient(t)
	client.RegisterScope(Scope{ID: "silent", DocumentIDs: []string{"doc"}})
	assert.Zero(t, client.Prefetch())
}

func TestClientCachedGenerate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	calls := 0
	produce := func(context.Context) (string, error) {
		calls++
		return "a generated exercise", nil
	}
	params := ArtifactParams{Topic: "recursion", Difficulty: "medium", Course: "cs101", Engine: "exercise", Model: "gpt-test"}

	_, status, err := client.CachedGenerate(ctx, params, produce)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)

	_, status, err = client.CachedGenerate(ctx, params, produce)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
	assert.Equal(t, 1, calls)
}

func TestClientPing(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClientCloseIdempotent(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
