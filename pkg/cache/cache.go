// Package cache provides the public caching interfaces for the retrieval
// engine. It supports multiple backends: an in-process cache for deployments
// without shared infrastructure and Redis for a distributed TTL cache shared
// by all workers.
package cache

import (
	"context"
	"time"
)

// Type represents the type of cache backend.
type Type string

const (
	TypeLocal Type = "local" // In-memory cache
	TypeRedis Type = "redis" // Redis cache
	TypeNone  Type = "none"  // Caching disabled
)

// Status reports how a cache-aside lookup was resolved.
type Status string

const (
	// StatusHit means the value came straight from the cache.
	StatusHit Status = "HIT"
	// StatusMiss means the value was computed and written back.
	StatusMiss Status = "MISS"
	// StatusBypass means the cache backend was unavailable or disabled and
	// the value was computed without a write-back.
	StatusBypass Status = "BYPASS"
)

// Cache defines the interface for all cache implementations.
//
// Every method tolerates a broken backend by returning an error rather than
// panicking; callers own the decision to degrade. Caching is an optimization
// layer, never a correctness dependency.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// If TTL is 0, the default TTL is used.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes all keys starting with the given prefix and
	// returns the number of keys removed. Used for bulk invalidation when a
	// document is re-ingested.
	DeleteMatching(ctx context.Context, prefix string) (int, error)

	// SetPipeline performs batch set operations for efficiency.
	SetPipeline(ctx context.Context, entries []Entry) error

	// GetMulti retrieves multiple keys at once.
	// Returns a map of key -> value, missing keys are not included.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)

	// Ping checks if the cache is healthy.
	Ping(ctx context.Context) error

	// Close releases any resources held by the cache.
	Close() error

	// Stats returns cache statistics.
	Stats() Stats
}

// Entry represents a single cache entry for pipeline operations.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Stats holds cache statistics for monitoring.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}
