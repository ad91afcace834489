package signalcache

import (
	"container/list"
	"sync"

	"dojibot/pkg/model"
)

// DefaultCapacity is the number of fired keys remembered by default
const DefaultCapacity = 1000

// Cache remembers which candles already produced a signal. When full it
// evicts the oldest inserted key; lookups do not refresh a key's position.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[model.SignalKey]*list.Element
}

// New creates a cache holding at most capacity keys
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[model.SignalKey]*list.Element, capacity),
	}
}

// HasFired reports whether key was marked and not yet evicted
func (c *Cache) HasFired(key model.SignalKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[key]
	return ok
}

// MarkFired records key. Marking an existing key is a no-op.
func (c *Cache) MarkFired(key model.SignalKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[key]; ok {
		return
	}
	c.index[key] = c.order.PushBack(key)

	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(model.SignalKey))
	}
}

// Len returns the number of remembered keys
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured bound
func (c *Cache) Capacity() int {
	return c.capacity
}
