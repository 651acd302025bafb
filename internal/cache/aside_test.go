package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redcache "github.com/blueberrycongee/ragmux/caches/redis"
	"github.com/blueberrycongee/ragmux/pkg/cache"
)

func TestGetOrCompute_MissThenHit(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	var calls atomic.Int64
	produce := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "computed", nil
	}

	val, status, err := GetOrCompute(ctx, m, nil, "k", time.Minute, produce, nil)
	require.NoError(t, err)
	assert.Equal(t, "computed", val)
	assert.Equal(t, cache.StatusMiss, status)
	assert.Equal(t, int64(1), calls.Load())

	val, status, err = GetOrCompute(ctx, m, nil, "k", time.Minute, produce, nil)
	require.NoError(t, err)
	assert.Equal(t, "computed", val)
	assert.Equal(t, cache.StatusHit, status)
	assert.Equal(t, int64(1), calls.Load(), "hit must not re-invoke the producer")
}

func TestGetOrCompute_NilCacheBypasses(t *testing.T) {
	ctx := context.Background()

	val, status, err := GetOrCompute(ctx, nil, nil, "k", time.Minute,
		func(ctx context.Context) (int, error) { return 42, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, cache.StatusBypass, status)
}

func TestGetOrCompute_ProducerError(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	boom := errors.New("boom")
	_, _, err := GetOrCompute(ctx, m, nil, "k", time.Minute,
		func(ctx context.Context) (string, error) { return "", boom }, nil)
	assert.ErrorIs(t, err, boom)

	// Nothing was stored.
	data, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestGetOrCompute_CacheablePredicate(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	notEmpty := func(s string) bool { return s != "" }

	var calls atomic.Int64
	produceEmpty := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", nil
	}

	// An empty value is returned but never stored, so the producer runs again.
	for i := 0; i < 2; i++ {
		val, status, err := GetOrCompute(ctx, m, nil, "k", time.Minute, produceEmpty, notEmpty)
		require.NoError(t, err)
		assert.Empty(t, val)
		assert.Equal(t, cache.StatusMiss, status)
	}
	assert.Equal(t, int64(2), calls.Load())
}

func TestGetOrCompute_BackendDownDegrades(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := redcache.DefaultConfig()
	cfg.Addr = s.Addr()
	rc, err := redcache.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	s.Close()
	ctx := context.Background()

	val, status, err := GetOrCompute(ctx, rc, nil, "k", time.Minute,
		func(ctx context.Context) (string, error) { return "live", nil }, nil)
	require.NoError(t, err, "backend failure must not surface to the caller")
	assert.Equal(t, "live", val)
	assert.Equal(t, cache.StatusBypass, status)
}

func TestGetOrCompute_CorruptEntryRecomputed(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := redcache.DefaultConfig()
	cfg.Addr = s.Addr()
	cfg.Namespace = "ragmux"
	rc, err := redcache.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	ctx := context.Background()

	// Plant a value that is not valid JSON for the target type.
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(ctx, "ragmux:k", "{not json", time.Minute).Err())

	val, status, err := GetOrCompute(ctx, rc, nil, "k", time.Minute,
		func(ctx context.Context) (string, error) { return "fresh", nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh", val)
	assert.Equal(t, cache.StatusMiss, status)
}
