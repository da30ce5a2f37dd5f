// Package cache provides the in-memory caches used by server sessions: a
// generic bounded LRU and an mtime-gated symbol cache built on top of it.
package cache

import (
	"container/list"
	"sync"
)

// Stats are cumulative hit/miss counters for one cache instance.
type Stats struct {
	Hits   int64
	Misses int64
}

// LRU is a bounded least-recently-used cache. It enforces both an entry
// count bound and a total payload size bound; whichever is exceeded first
// triggers eviction of the least recently accessed entries. A successful Get
// refreshes the entry to most recently used. Safe for concurrent use.
type LRU[K comparable, V any] struct {
	maxEntries int
	maxSize    int64
	sizeOf     func(V) int64

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[K]*list.Element
	size  int64
	stats Stats
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// NewLRU creates a cache bounded by maxEntries entries and maxSize total
// payload bytes as measured by sizeOf. A nil sizeOf counts every entry as
// size 1; a non-positive bound disables that bound.
func NewLRU[K comparable, V any](maxEntries int, maxSize int64, sizeOf func(V) int64) *LRU[K, V] {
	if sizeOf == nil {
		sizeOf = func(V) int64 { return 1 }
	}
	return &LRU[K, V]{
		maxEntries: maxEntries,
		maxSize:    maxSize,
		sizeOf:     sizeOf,
		order:      list.New(),
		items:      make(map[K]*list.Element),
	}
}

// Get returns the cached value and refreshes its recency.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or replaces a value and evicts from the LRU end until both
// bounds hold again.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*lruEntry[K, V])
		c.size += size - ent.size
		ent.value = value
		ent.size = size
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&lruEntry[K, V]{key: key, value: value, size: size})
		c.items[key] = el
		c.size += size
	}
	c.evict()
}

// Remove deletes a key; it reports whether the key was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(el)
	return true
}

// Clear drops all entries. Counters are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element)
	c.size = 0
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the total payload size of cached entries.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a snapshot of the hit/miss counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Keys returns the cached keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

// Export snapshots the contents as a plain map for persistence. Recency is
// not part of the snapshot.
func (c *LRU[K, V]) Export() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[K]V, len(c.items))
	for key, el := range c.items {
		out[key] = el.Value.(*lruEntry[K, V]).value
	}
	return out
}

// Import loads entries from a plain map, applying the usual bounds.
func (c *LRU[K, V]) Import(data map[K]V) {
	for key, value := range data {
		c.Put(key, value)
	}
}

// evict removes LRU entries until both bounds hold. Caller holds the lock.
func (c *LRU[K, V]) evict() {
	for {
		overCount := c.maxEntries > 0 && len(c.items) > c.maxEntries
		overSize := c.maxSize > 0 && c.size > c.maxSize
		if !overCount && !overSize {
			return
		}
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.remove(oldest)
	}
}

func (c *LRU[K, V]) remove(el *list.Element) {
	ent := el.Value.(*lruEntry[K, V])
	c.order.Remove(el)
	delete(c.items, ent.key)
	c.size -= ent.size
}
