package geocode

import (
	"context"
	"sync"
	"time"

	"github.com/healnet/donation-matching/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Cache stores geocode results keyed by normalized address. Get reports
// found=false on a miss; freshness is the caller's concern.
type Cache interface {
	Get(ctx context.Context, address string) (domain.GeocodeCacheEntry, bool, error)
	Put(ctx context.Context, entry domain.GeocodeCacheEntry) error
}

// MemoryCache is an in-process LRU tier. When backing is set, misses read
// through to it and writes go to both tiers.
type MemoryCache struct {
	lru     *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	backing Cache
}

// NewMemoryCache creates an LRU cache holding at most maxEntries fresh entries.
// backing may be nil.
func NewMemoryCache(maxEntries int, ttl time.Duration, clock clockwork.Clock, backing Cache) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{
		lru:     newLRUCache(max(maxEntries, 1)),
		ttl:     ttl,
		clock:   clock,
		backing: backing,
	}
}

func (c *MemoryCache) Get(ctx context.Context, address string) (domain.GeocodeCacheEntry, bool, error) {
	if e, ok := c.lru.get(address); ok {
		if c.fresh(e) {
			return e, true, nil
		}
		c.lru.delete(address)
	}
	if c.backing == nil {
		return domain.GeocodeCacheEntry{}, false, nil
	}

	e, ok, err := c.backing.Get(ctx, address)
	if err != nil || !ok {
		return e, ok, err
	}
	if c.fresh(e) {
		c.lru.put(address, e)
	}
	return e, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, entry domain.GeocodeCacheEntry) error {
	if entry.Quality == domain.QualityFailed {
		return nil
	}
	c.lru.put(entry.Address, entry)
	if c.backing == nil {
		return nil
	}
	return c.backing.Put(ctx, entry)
}

// Len returns the number of entries held in memory.
func (c *MemoryCache) Len() int {
	return c.lru.len()
}

func (c *MemoryCache) fresh(e domain.GeocodeCacheEntry) bool {
	return c.ttl <= 0 || c.clock.Since(e.UpdatedAt) < c.ttl
}

// lruCache is a simple thread-safe LRU cache for geocode entries.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.GeocodeCacheEntry
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.GeocodeCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.GeocodeCacheEntry{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.GeocodeCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
