// Package cache provides a generic, thread-safe LRU cache bounded by the
// total weight of its values.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache is a generic thread-safe LRU cache with built-in metrics.
// Each value has a weight; the cache evicts least recently used entries
// until the total weight fits the configured budget.
type Cache[K comparable, V any] struct {
	mu        sync.Mutex
	items     map[K]*entry[K, V]
	order     *list.List
	maxWeight int
	weight    int
	weigh     func(V) int

	// Metrics (lock-free using atomics)
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
	sets   atomic.Uint64
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	weight  int
	element *list.Element
}

// New creates a Cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return NewWeighted[K, V](capacity, nil)
}

// NewWeighted creates a Cache whose values are weighed by weigh and whose
// total weight never exceeds maxWeight. A nil weigh counts every value as 1.
// Values heavier than maxWeight are not cached.
func NewWeighted[K comparable, V any](maxWeight int, weigh func(V) int) *Cache[K, V] {
	if maxWeight <= 0 {
		maxWeight = 100
	}
	if weigh == nil {
		weigh = func(V) int { return 1 }
	}
	return &Cache[K, V]{
		items:     make(map[K]*entry[K, V]),
		order:     list.New(),
		maxWeight: maxWeight,
		weigh:     weigh,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set adds or replaces a value, evicting older entries to stay within budget.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// set must be called with mu held.
func (c *Cache[K, V]) set(key K, value V) {
	c.sets.Add(1)

	w := c.weigh(value)
	if e, ok := c.items[key]; ok {
		c.removeEntry(e)
	}
	if w > c.maxWeight {
		return
	}
	for c.weight+w > c.maxWeight {
		if !c.evictOldest() {
			break
		}
	}

	element := c.order.PushFront(key)
	c.items[key] = &entry[K, V]{key: key, value: value, weight: w, element: element}
	c.weight += w
}

// evictOldest removes the least recently used item. Must be called with mu held.
func (c *Cache[K, V]) evictOldest() bool {
	oldest := c.order.Back()
	if oldest == nil {
		return false
	}
	c.removeEntry(c.items[oldest.Value.(K)])
	c.evicts.Add(1)
	return true
}

func (c *Cache[K, V]) removeEntry(e *entry[K, V]) {
	delete(c.items, e.key)
	c.order.Remove(e.element)
	c.weight -= e.weight
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Errors are returned without caching. load runs with the cache
// locked, so concurrent callers for any key wait for it.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(e.element)
		return e.value, nil
	}
	c.misses.Add(1)

	value, err := load()
	if err != nil {
		return value, err
	}
	c.set(key, value)
	return value, nil
}

// Delete removes an item from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.removeEntry(e)
	}
}

// Len returns the current number of items in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all items from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*entry[K, V])
	c.order.Init()
	c.weight = 0
}

// Stats holds cache statistics.
type Stats struct {
	Size      int
	Weight    int
	MaxWeight int
	Hits      uint64
	Misses    uint64
	Evicts    uint64
	Sets      uint64
	HitRate   float64
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	size, weight := len(c.items), c.weight
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:      size,
		Weight:    weight,
		MaxWeight: c.maxWeight,
		Hits:      hits,
		Misses:    misses,
		Evicts:    c.evicts.Load(),
		Sets:      c.sets.Load(),
		HitRate:   hitRate,
	}
}
