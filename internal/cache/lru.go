package cache

// entry is a cached value linked into the recency ring.
type entry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *entry[K, V]
}

// ring orders entries by recency around a sentinel: root.next is the most
// recently used entry and root.prev the least. A ring must be initialized
// in place and not copied afterwards.
type ring[K comparable, V any] struct {
	root entry[K, V]
}

func (r *ring[K, V]) init() {
	r.root.prev = &r.root
	r.root.next = &r.root
}

// touch moves e to the front, linking it first if it is new.
func (r *ring[K, V]) touch(e *entry[K, V]) {
	if r.root.next == e {
		return
	}
	if e.next != nil {
		r.unlink(e)
	}
	e.prev = &r.root
	e.next = r.root.next
	r.root.next.prev = e
	r.root.next = e
}

func (r *ring[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

// oldest returns the least recently used entry, or nil when empty.
func (r *ring[K, V]) oldest() *entry[K, V] {
	if r.root.prev == &r.root {
		return nil
	}
	return r.root.prev
}
