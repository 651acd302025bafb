package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T, maxSize int) *Memory {
	t.Helper()

	m := NewMemory(MemoryConfig{
		MaxSize:         maxSize,
		DefaultTTL:      time.Minute,
		CleanupInterval: time.Hour, // disable background sweeps in tests
	})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemory_BasicOperations(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "key1", []byte("value1"), 0))

		val, err := m.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, []byte("value1"), val)
	})

	t.Run("get missing key", func(t *testing.T) {
		val, err := m.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "key2", []byte("old"), 0))
		require.NoError(t, m.Set(ctx, "key2", []byte("new"), 0))

		val, err := m.Get(ctx, "key2")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), val)
		assert.Equal(t, 2, m.Len())
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "key3", []byte("v"), 0))
		require.NoError(t, m.Delete(ctx, "key3"))

		val, err := m.Get(ctx, "key3")
		require.NoError(t, err)
		assert.Nil(t, val)
	})
}

func TestMemory_LRUEviction(t *testing.T) {
	m := newTestMemory(t, 3)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

	// Touch "a" so "b" becomes least recently used.
	_, err := m.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "d", []byte("4"), 0))

	val, err := m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, val, "least recently used entry should be evicted")

	for _, key := range []string{"a", "c", "d"} {
		val, err := m.Get(ctx, key)
		require.NoError(t, err)
		assert.NotNil(t, val, "key %s should survive", key)
	}
	assert.Equal(t, 3, m.Len())
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("v"), 30*time.Millisecond))

	val, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.NotNil(t, val)

	time.Sleep(50 * time.Millisecond)

	val, err = m.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, val, "expired entry should read as miss")
}

func TestMemory_DeleteMatching(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "context:doc-1:a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "context:doc-1:b", []byte("2"), 0))
	require.NoError(t, m.Set(ctx, "context:doc-2:c", []byte("3"), 0))

	deleted, err := m.DeleteMatching(ctx, "context:doc-1:")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := newTestMemory(t, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", j%60)
				_ = m.Set(ctx, key, []byte("v"), 0)
				_, _ = m.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), 50, "cache must stay bounded under concurrency")
}

func TestMemory_Stats(t *testing.T) {
	m := newTestMemory(t, 100)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	_, _ = m.Get(ctx, "k")
	_, _ = m.Get(ctx, "nope")

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
