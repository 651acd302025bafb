package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// GetOrCompute is the cache-aside helper used by every memoized call path:
// check the cache, and on miss invoke the producer and write the result
// back. It replaces per-call-site caching logic with one policy.
//
// A broken cache backend never fails the caller's primary operation: read
// and write errors are logged and the producer result is returned with
// StatusBypass. A nil cache behaves the same way.
//
// The optional cacheable predicate decides whether a freshly produced value
// is written back; nil means always store. Values that must become visible
// after later writes (e.g. empty retrieval results) should not be stored.
func GetOrCompute[T any](
	ctx context.Context,
	c cache.Cache,
	logger *slog.Logger,
	key string,
	ttl time.Duration,
	produce func(context.Context) (T, error),
	cacheable func(T) bool,
) (T, cache.Status, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}

	if c == nil {
		val, err := produce(ctx)
		if err != nil {
			return zero, cache.StatusBypass, err
		}
		return val, cache.StatusBypass, nil
	}

	data, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed, degrading to miss", "key", key, "error", err)

		val, perr := produce(ctx)
		if perr != nil {
			return zero, cache.StatusBypass, perr
		}
		return val, cache.StatusBypass, nil
	}

	if data != nil {
		var val T
		if uerr := json.Unmarshal(data, &val); uerr == nil {
			return val, cache.StatusHit, nil
		}
		// Corrupt entry: drop it and fall through to the producer.
		logger.Warn("cache entry corrupt, recomputing", "key", key)
		_ = c.Delete(ctx, key)
	}

	val, err := produce(ctx)
	if err != nil {
		return zero, cache.StatusMiss, err
	}

	if cacheable != nil && !cacheable(val) {
		return val, cache.StatusMiss, nil
	}

	data, err = json.Marshal(val)
	if err != nil {
		logger.Warn("cache value not serializable, skipping store", "key", key, "error", err)
		return val, cache.StatusMiss, nil
	}
	if serr := c.Set(ctx, key, data, ttl); serr != nil {
		logger.Warn("cache write failed, continuing without store", "key", key, "error", serr)
	}

	return val, cache.StatusMiss, nil
}
