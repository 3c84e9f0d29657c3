// Package build provides the content addressed cache used by asset tasks:
// an in-memory LRU in front of an on-disk store.
package build

import (
	"sync"
	"sync/atomic"
	"time"
)

// BuildCache caches processed outputs with LRU eviction and optional TTL.
// A zero TTL keeps entries until they are evicted.
type BuildCache struct {
	entries     map[string]*CacheEntry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	ttl         time.Duration
	// LRU list with sentinel head and tail
	head *CacheEntry
	tail *CacheEntry

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

// CacheEntry is one cached output.
type CacheEntry struct {
	Key        string
	Value      []byte
	CreatedAt  time.Time
	AccessedAt time.Time
	Size       int64

	prev *CacheEntry
	next *CacheEntry
}

// NewBuildCache creates a cache holding at most maxSize bytes of values.
func NewBuildCache(maxSize int64, ttl time.Duration) *BuildCache {
	cache := &BuildCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}

	cache.head = &CacheEntry{}
	cache.tail = &CacheEntry{}
	cache.head.next = cache.tail
	cache.tail.prev = cache.head

	return cache
}

// Get retrieves a value from the cache
func (bc *BuildCache) Get(key string) ([]byte, bool) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	entry, exists := bc.entries[key]
	if !exists {
		atomic.AddInt64(&bc.misses, 1)
		return nil, false
	}

	if bc.expired(entry) {
		bc.remove(entry)
		atomic.AddInt64(&bc.misses, 1)
		return nil, false
	}

	bc.moveToFront(entry)
	entry.AccessedAt = time.Now()
	atomic.AddInt64(&bc.hits, 1)
	return entry.Value, true
}

// Set stores a value in the cache. Values larger than the cache are not
// stored.
func (bc *BuildCache) Set(key string, value []byte) {
	size := int64(len(value))
	if size > bc.maxSize {
		return
	}

	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if existing, exists := bc.entries[key]; exists {
		bc.currentSize += size - existing.Size
		existing.Value = value
		existing.Size = size
		existing.CreatedAt = time.Now()
		existing.AccessedAt = existing.CreatedAt
		bc.moveToFront(existing)
		bc.evictIfNeeded(0)
		atomic.AddInt64(&bc.sets, 1)
		return
	}

	bc.evictIfNeeded(size)

	now := time.Now()
	entry := &CacheEntry{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		AccessedAt: now,
		Size:       size,
	}
	bc.entries[key] = entry
	bc.currentSize += size
	bc.addToFront(entry)
	atomic.AddInt64(&bc.sets, 1)
}

// Delete drops key from the cache.
func (bc *BuildCache) Delete(key string) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	if entry, ok := bc.entries[key]; ok {
		bc.remove(entry)
	}
}

// Clear clears all cache entries and resets statistics
func (bc *BuildCache) Clear() {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	bc.entries = make(map[string]*CacheEntry)
	bc.currentSize = 0
	bc.head.next = bc.tail
	bc.tail.prev = bc.head

	atomic.StoreInt64(&bc.hits, 0)
	atomic.StoreInt64(&bc.misses, 0)
	atomic.StoreInt64(&bc.sets, 0)
	atomic.StoreInt64(&bc.evictions, 0)
}

// CacheStats is a point in time view of cache counters.
type CacheStats struct {
	Entries   int
	Size      int64
	MaxSize   int64
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns cache statistics
func (bc *BuildCache) Stats() CacheStats {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	return CacheStats{
		Entries:   len(bc.entries),
		Size:      bc.currentSize,
		MaxSize:   bc.maxSize,
		Hits:      atomic.LoadInt64(&bc.hits),
		Misses:    atomic.LoadInt64(&bc.misses),
		Sets:      atomic.LoadInt64(&bc.sets),
		Evictions: atomic.LoadInt64(&bc.evictions),
	}
}

func (bc *BuildCache) expired(entry *CacheEntry) bool {
	return bc.ttl > 0 && time.Since(entry.CreatedAt) > bc.ttl
}

// evictIfNeeded evicts least recently used entries until newSize more bytes
// fit.
func (bc *BuildCache) evictIfNeeded(newSize int64) {
	for bc.currentSize+newSize > bc.maxSize && bc.tail.prev != bc.head {
		lru := bc.tail.prev
		bc.remove(lru)
		atomic.AddInt64(&bc.evictions, 1)
	}
}

func (bc *BuildCache) remove(entry *CacheEntry) {
	bc.removeFromList(entry)
	delete(bc.entries, entry.Key)
	bc.currentSize -= entry.Size
}

func (bc *BuildCache) addToFront(entry *CacheEntry) {
	entry.prev = bc.head
	entry.next = bc.head.next
	bc.head.next.prev = entry
	bc.head.next = entry
}

func (bc *BuildCache) removeFromList(entry *CacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (bc *BuildCache) moveToFront(entry *CacheEntry) {
	bc.removeFromList(entry)
	bc.addToFront(entry)
}
