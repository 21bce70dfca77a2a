package cache

import (
	"sort"
	"sync"
	"time"
)

// MemoryCache is a bounded in-process cache with TTL. When full it evicts a
// quarter of its entries, least accessed and oldest first.
type MemoryCache struct {
	maxItems int
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex

	entries map[string]*memoryEntry
}

type memoryEntry struct {
	key         string
	query       Query
	value       []byte
	createdAt   time.Time
	deadline    time.Time // zero: only the memory TTL applies
	accessCount int
}

// NewMemoryCache creates a memory cache holding at most maxItems entries.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 100
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryCache{
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*memoryEntry),
	}
}

// Get returns the value stored under key. Expired entries are removed.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	e.accessCount++
	return e.value, true
}

// Set stores value under key and returns the number of entries evicted to
// make room.
func (c *MemoryCache) Set(key string, q Query, value []byte) int {
	return c.SetUntil(key, q, value, time.Time{})
}

// SetUntil is Set for a value that must not outlive deadline, such as one
// promoted from a tier with its own expiry.
func (c *MemoryCache) SetUntil(key string, q Query, value []byte, deadline time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.query = q
		e.value = value
		e.createdAt = now
		e.deadline = deadline
		e.accessCount = 1
		return 0
	}

	evicted := 0
	if len(c.entries) >= c.maxItems {
		evicted = c.evict()
	}
	c.entries[key] = &memoryEntry{
		key:         key,
		query:       q,
		value:       value,
		createdAt:   now,
		deadline:    deadline,
		accessCount: 1,
	}
	return evicted
}

// evict removes max(1, n/4) entries ordered by access count, then age.
// Must be called with lock held.
func (c *MemoryCache) evict() int {
	victims := make([]*memoryEntry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].accessCount != victims[j].accessCount {
			return victims[i].accessCount < victims[j].accessCount
		}
		return victims[i].createdAt.Before(victims[j].createdAt)
	})

	n := max(1, len(victims)/4)
	for _, e := range victims[:n] {
		delete(c.entries, e.key)
	}
	return n
}

func (c *MemoryCache) expired(e *memoryEntry, now time.Time) bool {
	if !e.deadline.IsZero() && now.After(e.deadline) {
		return true
	}
	return now.Sub(e.createdAt) > c.ttl
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAddress removes entries whose query mentions address and returns
// their keys.
func (c *MemoryCache) InvalidateAddress(address string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for key, e := range c.entries {
		if e.query.Matches(address) {
			delete(c.entries, key)
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxItems returns the configured capacity.
func (c *MemoryCache) MaxItems() int { return c.maxItems }

// TTL returns the entry lifetime.
func (c *MemoryCache) TTL() time.Duration { return c.ttl }

// Keys returns the keys currently held.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clear removes all entries and returns how many there were.
func (c *MemoryCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*memoryEntry)
	return n
}

// ClearExpired removes all expired entries.
// Returns the number of entries removed.
func (c *MemoryCache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
