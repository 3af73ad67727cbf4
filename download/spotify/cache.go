package spotify

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
	HitRate   float64
}

type cacheEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	element   *list.Element
}

// TTLCache is a thread-safe TTL cache with LRU eviction. One instance is
// owned by each Client; nothing is shared across clients.
type TTLCache[V any] struct {
	mu             sync.Mutex
	entries        map[string]*cacheEntry[V]
	lru            *list.List
	maxSize        int
	ttl            time.Duration
	now            func() time.Time
	hits           int64
	misses         int64
	evictions      int64
	stopCleanup    chan struct{}
	cleanupRunning bool
}

// NewTTLCache creates a cache holding at most maxSize entries for ttlSeconds each.
func NewTTLCache[V any](maxSize, ttlSeconds int) *TTLCache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &TTLCache[V]{
		entries:     make(map[string]*cacheEntry[V]),
		lru:         list.New(),
		maxSize:     maxSize,
		ttl:         time.Duration(ttlSeconds) * time.Second,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
}

// Get returns the cached value and whether it was present and fresh.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return zero, false
	}

	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		c.lru.Remove(entry.element)
		atomic.AddInt64(&c.misses, 1)
		return zero, false
	}

	c.lru.MoveToFront(entry.element)
	atomic.AddInt64(&c.hits, 1)
	return entry.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)

	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.expiresAt = expiresAt
		c.lru.MoveToFront(existing.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		if back := c.lru.Back(); back != nil {
			old := back.Value.(*cacheEntry[V])
			delete(c.entries, old.key)
			c.lru.Remove(back)
			atomic.AddInt64(&c.evictions, 1)
		}
	}

	entry := &cacheEntry[V]{key: key, value: value, expiresAt: expiresAt}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result. Errors are not cached.
func (c *TTLCache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Hits:      hits,
		Misses:    misses,
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      size,
		MaxSize:   c.maxSize,
		HitRate:   hitRate,
	}
}

// StartCleanup starts a background goroutine that drops expired entries.
func (c *TTLCache[V]) StartCleanup(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleanupRunning {
		return
	}
	c.cleanupRunning = true
	c.stopCleanup = make(chan struct{})
	go c.cleanupLoop(interval, c.stopCleanup)
}

// StopCleanup stops the background cleanup goroutine.
func (c *TTLCache[V]) StopCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cleanupRunning {
		return
	}
	close(c.stopCleanup)
	c.cleanupRunning = false
}

func (c *TTLCache[V]) cleanupLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-stop:
			return
		}
	}
}

func (c *TTLCache[V]) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.lru.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*cacheEntry[V])
		if !now.Before(entry.expiresAt) {
			delete(c.entries, entry.key)
			c.lru.Remove(e)
		}
		e = next
	}
}
