// Package cache implements the content-addressed store that lets large
// document bodies be referenced by a short id instead of being
// retransmitted on every turn. Entries are deduplicated by a fast
// non-cryptographic content hash, evicted LRU at capacity, and expire
// lazily once unaccessed for longer than the TTL.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

const (
	DefaultMaxEntries = 100
	DefaultTTL        = time.Hour
)

// ErrNotFound is returned by Get when the id is absent or its entry has
// expired. Callers recover by resending the raw content.
var ErrNotFound = errors.New("cache: content not found")

// Observer receives cache lifecycle notifications. Used to feed metrics;
// all methods must be cheap and non-blocking.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEviction()
	CacheExpiration()
	CacheSize(entries int, bytes int64)
}

type entry struct {
	id         string
	content    string
	hash       uint64
	createdAt  time.Time
	lastAccess time.Time
	elem       *list.Element
}

// Cache is safe for concurrent use; Store and Get serialize on a single
// mutex because eviction mutates shared state.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	byID       map[string]*entry
	byHash     map[uint64]*entry
	lru        *list.List // front = most recently accessed
	totalBytes int64
	observer   Observer

	now func() time.Time // injectable for expiry tests
}

type Options struct {
	MaxEntries int
	TTL        time.Duration
	Observer   Observer
}

func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Cache{
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		byID:       make(map[string]*entry, opts.MaxEntries),
		byHash:     make(map[uint64]*entry, opts.MaxEntries),
		lru:        list.New(),
		observer:   opts.Observer,
		now:        time.Now,
	}
}

// Store deduplicates content by hash. A live entry with the same hash is
// refreshed and its id returned with isNew=false; otherwise the least
// recently accessed entry is evicted if the cache is full and a fresh
// entry is inserted.
func (c *Cache) Store(content string) (id string, isNew bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := xxh3.HashString(content)
	if e, ok := c.byHash[hash]; ok {
		if !c.expired(e) {
			c.touch(e)
			return e.id, false
		}
		c.remove(e)
		c.observe(func(o Observer) { o.CacheExpiration() })
	}

	if c.lru.Len() >= c.maxEntries {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest.Value.(*entry))
			c.observe(func(o Observer) { o.CacheEviction() })
		}
	}

	now := c.now()
	e := &entry{
		id:         uuid.NewString(),
		content:    content,
		hash:       hash,
		createdAt:  now,
		lastAccess: now,
	}
	e.elem = c.lru.PushFront(e)
	c.byID[e.id] = e
	c.byHash[hash] = e
	c.totalBytes += int64(len(content))
	c.observe(func(o Observer) { o.CacheSize(c.lru.Len(), c.totalBytes) })
	return e.id, true
}

// Get resolves an id to its content, refreshing the access time. Expired
// entries are removed as a side effect and reported as not found.
func (c *Cache) Get(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[id]
	if !ok {
		c.observe(func(o Observer) { o.CacheMiss() })
		return "", ErrNotFound
	}
	if c.expired(e) {
		c.remove(e)
		c.observe(func(o Observer) {
			o.CacheExpiration()
			o.CacheMiss()
		})
		return "", ErrNotFound
	}
	c.touch(e)
	c.observe(func(o Observer) { o.CacheHit() })
	return e.content, nil
}

// EntryStat describes one live entry for observability.
type EntryStat struct {
	ID   string        `json:"id"`
	Size int           `json:"size"`
	Age  time.Duration `json:"age"`
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Count      int         `json:"count"`
	TotalBytes int64       `json:"total_bytes"`
	Entries    []EntryStat `json:"entries"`
}

// Stats reports live (non-expired) entries, most recently accessed first.
// Expired entries still resident (expiry is lazy) count toward neither
// Count nor TotalBytes.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var stats Stats
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		if c.expired(e) {
			continue
		}
		stats.Count++
		stats.TotalBytes += int64(len(e.content))
		stats.Entries = append(stats.Entries, EntryStat{
			ID:   e.id,
			Size: len(e.content),
			Age:  now.Sub(e.createdAt),
		})
	}
	return stats
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.lastAccess) > c.ttl
}

func (c *Cache) touch(e *entry) {
	e.lastAccess = c.now()
	c.lru.MoveToFront(e.elem)
}

// remove must be called with the mutex held.
func (c *Cache) remove(e *entry) {
	c.lru.Remove(e.elem)
	delete(c.byID, e.id)
	delete(c.byHash, e.hash)
	c.totalBytes -= int64(len(e.content))
	c.observe(func(o Observer) { o.CacheSize(c.lru.Len(), c.totalBytes) })
}

func (c *Cache) observe(fn func(Observer)) {
	if c.observer != nil {
		fn(c.observer)
	}
}
