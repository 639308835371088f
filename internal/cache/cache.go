package cache

import "sync"

// Cache is a generic thread-safe LRU cache with a hard entry limit.
// Values are built on demand by a fallible constructor and evicted
// least-recently-used first.
//
// Cache is safe for concurrent use.
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*entry[K, V]
	lru      ring[K, V]
	capacity int
	onEvict  func(K, V)

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a new cache holding at most capacity entries.
// A capacity of 0 means unlimited.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:  make(map[K]*entry[K, V]),
		capacity: capacity,
	}
	c.lru.init()
	return c
}

// OnEvict registers fn to be called, under the cache lock, for every
// entry removed by eviction or Clear.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get retrieves a value from the cache.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.lru.touch(e)
	return e.value, true
}

// GetOrCreate returns the cached value or builds it with create.
// create runs under the lock so concurrent callers never build the same
// key twice. A failed create stores nothing.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.hits++
		c.lru.touch(e)
		return e.value, true, nil
	}
	c.misses++

	value, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.insertLocked(key, value)
	return value, false, nil
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for k, e := range c.entries {
			c.onEvict(k, e.value)
		}
	}
	c.entries = make(map[K]*entry[K, V])
	c.lru.init()
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// insertLocked adds a missing key and evicts down to capacity. Caller
// must hold c.mu.
func (c *Cache[K, V]) insertLocked(key K, value V) {
	e := &entry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.lru.touch(e)

	for c.capacity > 0 && len(c.entries) > c.capacity {
		old := c.lru.oldest()
		if old == nil {
			break
		}
		c.lru.unlink(old)
		delete(c.entries, old.key)
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(old.key, old.value)
		}
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the entry limit, 0 for unlimited.
	Capacity int
	// Hits is the number of lookups that found an entry.
	Hits uint64
	// Misses is the number of lookups that did not.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of entries removed to respect Capacity.
	Evictions uint64
}
