// Package embedding turns text into fixed-dimension vectors. It provides the
// provider abstraction, an OpenAI-compatible HTTP implementation, and the
// process-wide Service that owns the model handle and the in-process
// embedding cache.
package embedding

import "context"

// Embedder defines the interface for generating text embeddings.
// Implementations must be safe for concurrent use: inference is
// side-effect-free and the engine shares one embedder across all workers.
type Embedder interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in a single
	// request, preserving input order in the output.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the dimension of the embedding vectors.
	Dimension() int
}
