// Package ragmux provides a retrieval and caching engine for RAG
// applications as a Go library.
//
// It wires together an embedding service with an in-process vector cache,
// an ANN vector store (in-memory or pgvector), and a distributed TTL cache
// (in-process or Redis) behind one cache-aside retrieval pipeline, plus a
// batched ingestion pipeline and a background prefetch scheduler.
//
// Basic usage:
//
//	client, err := ragmux.New(ctx,
//	    ragmux.WithRedisCache(ragmux.RedisConfig{Addr: "localhost:6379"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RegisterScope(ragmux.Scope{
//	    ID:          "cs101",
//	    DocumentIDs: []string{"syllabus", "lecture-notes"},
//	    WarmQuery:   "course overview",
//	})
//
//	_, err = client.Ingest(ctx, "syllabus", chunks)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text, status, err := client.GetContext(ctx, "cs101", "when is the exam?", 0)
package ragmux

import (
	redcache "github.com/blueberrycongee/ragmux/caches/redis"
	"github.com/blueberrycongee/ragmux/internal/embedding"
	"github.com/blueberrycongee/ragmux/internal/retrieval"
	"github.com/blueberrycongee/ragmux/internal/vectorstore"
	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// Version is the current version of ragmux.
const Version = "0.4.0"

// Re-export core types for convenience.
type (
	// Scope names the set of documents a retrieval request may draw from.
	Scope = retrieval.Scope

	// Chunk is one ingestible piece of a document.
	Chunk = vectorstore.Chunk

	// Result is a scored chunk returned by a vector search.
	Result = vectorstore.Result

	// ArtifactParams identify a cached generated artifact.
	ArtifactParams = retrieval.ArtifactParams

	// Status reports how a lookup was resolved: HIT, MISS, or BYPASS.
	Status = cache.Status

	// CacheStats holds cache hit/miss counters.
	CacheStats = cache.Stats

	// Embedder turns text into vectors. Implement it to plug in a custom
	// embedding backend.
	Embedder = embedding.Embedder

	// RedisConfig holds the Redis cache settings.
	RedisConfig = redcache.Config

	// OpenAIConfig holds the OpenAI-compatible embedder settings.
	OpenAIConfig = embedding.OpenAIConfig
)

// Cache outcome values.
const (
	StatusHit    = cache.StatusHit
	StatusMiss   = cache.StatusMiss
	StatusBypass = cache.StatusBypass
)
