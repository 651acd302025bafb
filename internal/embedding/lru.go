package embedding

import (
	"container/list"
	"sync"
)

// vectorLRU is the bounded least-recently-used cache mapping normalized
// query text to its embedding vector. It is owned by the Service, purely an
// optimization layer: losing it costs model calls, never correctness.
type vectorLRU struct {
	mu       sync.Mutex
	capacity int
	data     map[string]*list.Element
	order    *list.List // front = most recently used
}

type lruEntry struct {
	key    string
	vector []float32
}

func newVectorLRU(capacity int) *vectorLRU {
	if capacity <= 0 {
		capacity = 5000
	}
	return &vectorLRU{
		capacity: capacity,
		data:     make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the cached vector and marks the entry as recently used.
func (c *vectorLRU) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.data[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).vector, true
}

// put inserts a vector, evicting the least recently used entry at capacity.
func (c *vectorLRU) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.data[key]; ok {
		el.Value.(*lruEntry).vector = vector
		c.order.MoveToFront(el)
		return
	}

	if len(c.data) >= c.capacity {
		lru := c.order.Back()
		if lru != nil {
			delete(c.data, lru.Value.(*lruEntry).key)
			c.order.Remove(lru)
		}
	}

	c.data[key] = c.order.PushFront(&lruEntry{key: key, vector: vector})
}

func (c *vectorLRU) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
