// Package cache provides the in-process cache implementation, deterministic
// key generation, and the cache-aside helper shared by the retrieval engine
// and generation-artifact callers.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// Memory implements cache.Cache with bounded LRU eviction plus per-entry
// TTL. It backs deployments that run without Redis and doubles as the local
// cache in tests. Entries disappear on process restart with no correctness
// impact.
type Memory struct {
	mu    sync.Mutex
	data  map[string]*list.Element
	order *list.List // front = most recently used

	maxSize       int
	defaultTTL    time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once

	// Statistics
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

type memoryEntry struct {
	key        string
	value      []byte
	expiration int64 // unix nano, 0 = no expiry
}

// MemoryConfig holds configuration for Memory.
type MemoryConfig struct {
	MaxSize         int           // Maximum number of entries (default: 1000)
	DefaultTTL      time.Duration // Default TTL (default: 10 minutes)
	CleanupInterval time.Duration // Expired-entry sweep interval (default: 1 minute)
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxSize:         1000,
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// NewMemory creates a new in-memory LRU+TTL cache.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	m := &Memory{
		data:        make(map[string]*list.Element),
		order:       list.New(),
		maxSize:     cfg.MaxSize,
		defaultTTL:  cfg.DefaultTTL,
		stopCleanup: make(chan struct{}),
	}

	m.cleanupTicker = time.NewTicker(cfg.CleanupInterval)
	go m.cleanupLoop()

	return m
}

func (m *Memory) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.evictExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Memory) evictExpired() {
	now := time.Now().UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Scan from the LRU end; expired entries cluster there in practice but
	// the sweep still walks the whole list to stay correct.
	var next *list.Element
	for el := m.order.Back(); el != nil; el = next {
		next = el.Prev()
		entry := el.Value.(*memoryEntry)
		if entry.expiration > 0 && entry.expiration <= now {
			m.removeLocked(el)
		}
	}
}

// removeLocked unlinks an element; caller holds the lock.
func (m *Memory) removeLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.data, entry.key)
	m.order.Remove(el)
}

// Get retrieves a value and marks the entry as recently used.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	el, ok := m.data[key]
	if !ok {
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, nil
	}

	entry := el.Value.(*memoryEntry)
	if entry.expiration > 0 && entry.expiration <= time.Now().UnixNano() {
		m.removeLocked(el)
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, nil
	}

	m.order.MoveToFront(el)
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	m.mu.Unlock()

	m.hits.Add(1)
	return value, nil
}

// Set stores a value, evicting the least recently used entry at capacity.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	expiration := time.Now().Add(ttl).UnixNano()

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.data[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = valueCopy
		entry.expiration = expiration
		m.order.MoveToFront(el)
		m.sets.Add(1)
		return nil
	}

	for len(m.data) >= m.maxSize {
		lru := m.order.Back()
		if lru == nil {
			break
		}
		m.removeLocked(lru)
	}

	el := m.order.PushFront(&memoryEntry{key: key, value: valueCopy, expiration: expiration})
	m.data[key] = el
	m.sets.Add(1)
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.data[key]; ok {
		m.removeLocked(el)
		m.deletes.Add(1)
	}
	return nil
}

// DeleteMatching removes all keys starting with the given prefix.
func (m *Memory) DeleteMatching(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	var next *list.Element
	for el := m.order.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*memoryEntry)
		if strings.HasPrefix(entry.key, prefix) {
			m.removeLocked(el)
			deleted++
		}
	}

	m.deletes.Add(int64(deleted))
	return deleted, nil
}

// SetPipeline stores multiple entries.
func (m *Memory) SetPipeline(ctx context.Context, entries []cache.Entry) error {
	for _, entry := range entries {
		if err := m.Set(ctx, entry.Key, entry.Value, entry.TTL); err != nil {
			return err
		}
	}
	return nil
}

// GetMulti retrieves multiple keys; missing keys are not included.
func (m *Memory) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		val, err := m.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if val != nil {
			result[key] = val
		}
	}
	return result, nil
}

// Ping always succeeds for the in-memory cache.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.stopCleanup)
	})
	return nil
}

// Stats returns cache statistics.
func (m *Memory) Stats() cache.Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return cache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    m.sets.Load(),
		Deletes: m.deletes.Load(),
		HitRate: hitRate,
	}
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var _ cache.Cache = (*Memory)(nil)
