package auth

import (
	"container/list"
	"sync"
	"time"
)

// TTLCache maps credentials to account ids. Entries expire a fixed duration
// after insertion regardless of how often they are read. When the cache is
// full the oldest insertion is evicted first.
//
// Only successful resolutions belong here; callers never store failures.
type TTLCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key        string
	value      string
	insertedAt time.Time
}

type CacheOption func(*TTLCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *TTLCache) { c.now = now }
}

// NewTTLCache returns an empty cache. capacity <= 0 means unbounded.
func NewTTLCache(ttl time.Duration, capacity int, opts ...CacheOption) *TTLCache {
	c := &TTLCache{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.remove(el)
		return "", false
	}
	return e.value, true
}

// Set inserts or refreshes key. A refreshed key counts as a new insertion.
func (c *TTLCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.value = value
		e.insertedAt = now
		c.order.MoveToBack(el)
		return
	}

	if c.capacity > 0 && c.order.Len() >= c.capacity {
		c.evict(now)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, value: value, insertedAt: now})
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evict drops expired entries from the front, and the oldest live entry if
// that did not free a slot. Must be called with mu held.
func (c *TTLCache) evict(now time.Time) {
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*cacheEntry).insertedAt) < c.ttl {
			break
		}
		c.remove(el)
		el = next
	}
	if c.order.Len() >= c.capacity {
		c.remove(c.order.Front())
	}
}

func (c *TTLCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}
