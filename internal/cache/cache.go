// Package cache is an in-memory LRU cache for query results.
//
// Every write to the index clears the whole cache and advances its
// generation. A result computed before a write carries the old generation,
// so Put drops it instead of caching stale data.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxEntries = 512
	DefaultTTL        = 5 * time.Minute
)

// Options size the cache.
type Options struct {
	MaxEntries int
	// TTL is how long an entry is served. Zero uses DefaultTTL; a negative
	// TTL disables expiry.
	TTL time.Duration
}

// Stats are cumulative counters plus the current size.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Invalidations int64
	Entries       int
	HitRate       float64
}

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	items      map[string]*list.Element
	generation uint64
	now        func() time.Time

	hits, misses, evictions, invalidations int64
}

// New creates a cache.
func New[V any](opts Options) *Cache[V] {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	return &Cache[V]{
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Key builds a cache key from free text, canonical filters and options.
// Free text is lower-cased and its whitespace collapsed.
func Key(text, filters, options string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return norm + "|" + filters + "|" + options
}

// Get returns the cached value for key. Expired entries count as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e, ok := el.Value.(*entry[V])
	if !ok {
		c.removeElement(el)
		c.misses++
		return zero, false
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.removeElement(el)
		c.misses++
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Generation returns the current generation. Callers read it before
// computing a value and pass it to Put.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Put stores value under key unless the cache has been invalidated since
// generation was read. It reports whether the value was stored.
func (c *Cache[V]) Put(key string, value V, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}
	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		el.Value = &entry[V]{key: key, value: value, expires: expires}
		c.ll.MoveToFront(el)
		return true
	}
	c.items[key] = c.ll.PushFront(&entry[V]{key: key, value: value, expires: expires})
	for c.ll.Len() > c.maxEntries {
		c.removeElement(c.ll.Back())
		c.evictions++
	}
	return true
}

// InvalidateByFile is called after path was written. Any cached result may
// depend on any file, so the whole cache is cleared.
func (c *Cache[V]) InvalidateByFile(path string) {
	c.Clear()
}

// Clear drops every entry and advances the generation.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	clear(c.items)
	c.generation++
	c.invalidations++
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
		Entries:       c.ll.Len(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache[V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	if e, ok := el.Value.(*entry[V]); ok {
		delete(c.items, e.key)
	}
}
