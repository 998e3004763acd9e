// Package cache provides a bounded, TTL-aware LRU map safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

// LRU is a fixed-capacity map that evicts the least-recently-used key when
// full and treats entries older than the TTL as absent.
// A zero TTL disables expiry.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[K]*list.Element
	now      func() time.Time
}

// New creates an LRU holding at most capacity entries.
func New[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[K]*list.Element, capacity),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *LRU[K, V]) WithClock(now func() time.Time) *LRU[K, V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the value for key and marks it most recently used.
// Expired entries are removed and reported as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(el)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// GetValid is Get for values that can go stale: when valid rejects the
// stored value the entry is removed and a miss is reported, without
// touching recency order.
func (c *LRU[K, V]) GetValid(key K, valid func(V) bool) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) || !valid(e.value) {
		c.removeElement(el)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, evicting the least-recently-used entry
// when the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.storedAt = now
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, storedAt: now})
}

// Update runs fn on the current value for key (zero value and false when
// absent or expired) and stores the result, all under one lock acquisition.
func (c *LRU[K, V]) Update(key K, fn func(cur V, ok bool) V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var cur V
	el, ok := c.items[key]
	if ok {
		e := el.Value.(*entry[K, V])
		if c.expired(e) {
			c.removeElement(el)
			ok = false
		} else {
			cur = e.value
		}
	}
	next := fn(cur, ok)
	if ok {
		e := el.Value.(*entry[K, V])
		e.value = next
		e.storedAt = now
		c.ll.MoveToFront(el)
		return next
	}
	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: next, storedAt: now})
	return next
}

// Delete removes key if present.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of stored entries, including expired ones not yet
// reclaimed.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Cap returns the configured capacity.
func (c *LRU[K, V]) Cap() int { return c.capacity }

func (c *LRU[K, V]) expired(e *entry[K, V]) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
