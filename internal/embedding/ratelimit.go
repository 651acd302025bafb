package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder wraps an Embedder with a token-bucket limiter so a
// burst of ingestion work cannot starve the provider or trip its quota.
// One batch call consumes one token regardless of batch size; the provider
// bills per request, not per text.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder creates a rate-limited embedder allowing rps
// requests per second with the given burst.
func NewRateLimitedEmbedder(inner Embedder, rps float64, burst int) *RateLimitedEmbedder {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for a limiter token, then delegates.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, text)
}

// EmbedBatch waits for a limiter token, then delegates.
func (e *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.EmbedBatch(ctx, texts)
}

// Model returns the inner model name.
func (e *RateLimitedEmbedder) Model() string {
	return e.inner.Model()
}

// Dimension returns the inner embedding dimension.
func (e *RateLimitedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

var _ Embedder = (*RateLimitedEmbedder)(nil)
