// Package cache holds commute results per apartment address for the lifetime
// of a destination. Entries expire after a TTL and the least recently used
// entry is evicted when the cache is full.
package cache

import (
	"container/list"
	"sync"
	"time"

	"commute-annotator/internal/types"
	"commute-annotator/metrics"
)

type entry struct {
	key        string
	value      types.CommuteResult
	insertedAt time.Time
}

// Cache is a bounded, TTL-expiring LRU map safe for concurrent use
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front is most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

// New creates a cache holding at most capacity entries for ttl each
func New(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Has reports whether key holds a live entry. Expired entries are removed.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live(key) != nil
}

// Get returns the value for key and marks it most recently used
func (c *Cache) Get(key string) (types.CommuteResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el := c.live(key)
	if el == nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return types.CommuteResult{}, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Set inserts or overwrites key, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Set(key string, value types.CommuteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.insertedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&entry{key: key, value: value, insertedAt: c.now()})
}

// Clear drops every entry. It must be called whenever the destination changes,
// since cached durations are relative to the old one.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) live(key string) *list.Element {
	el, ok := c.items[key]
	if !ok {
		return nil
	}
	if c.now().Sub(el.Value.(*entry).insertedAt) > c.ttl {
		metrics.CacheLookupsTotal.WithLabelValues("expired").Inc()
		c.remove(el)
		return nil
	}
	return el
}

func (c *Cache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
