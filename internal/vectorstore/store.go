// Package vectorstore provides durable storage and approximate similarity
// search over chunk embeddings. The Postgres implementation backs production
// deployments with a pgvector HNSW index; the in-memory implementation
// serves tests and index-free single-process deployments.
package vectorstore

import (
	"context"
)

// Chunk is the immutable unit of retrievable text. Chunks are created
// during ingestion, never mutated, and removed only when their owning
// document is deleted.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
	Page       int    `json:"page,omitempty"`
}

// Record pairs a Chunk with its embedding vector for insertion.
type Record struct {
	Chunk  Chunk
	Vector []float32
}

// Result is a single search hit. Distance is cosine distance: 0 identical,
// 2 opposite.
type Result struct {
	Chunk    Chunk
	Distance float64
}

// Store defines the vector store contract.
//
// Search ordering is deterministic: ascending distance, ties broken by
// ascending chunk position. Downstream cache keys depend on this. A scope
// with zero eligible chunks yields an empty result, not an error, and a
// result never contains a chunk outside the requested scope.
type Store interface {
	// InsertBatch upserts chunk+embedding pairs. Re-insertion with the
	// same chunk id replaces the existing row, never duplicates, so a
	// resumed ingestion can safely replay batches.
	InsertBatch(ctx context.Context, records []Record) error

	// Search returns at most topK chunks from the given documents closest
	// to the query vector under cosine distance.
	Search(ctx context.Context, documentIDs []string, queryVector []float32, topK int) ([]Result, error)

	// DeleteDocument removes all chunks of a document (cascade on document
	// removal or re-ingest from scratch).
	DeleteDocument(ctx context.Context, documentID string) error

	// Count returns the number of persisted chunks for a document.
	Count(ctx context.Context, documentID string) (int, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
