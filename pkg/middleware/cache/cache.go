// Package cache provides a time-boxed, size-bounded response cache for
// generation requests, keyed by a deterministic request fingerprint.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"planner/pkg/logx"
)

const (
	// DefaultTTL is how long a cached response stays valid.
	DefaultTTL = 30 * time.Minute

	// DefaultMaxEntries caps the number of live cache entries.
	DefaultMaxEntries = 100
)

// Entry holds one cached payload with its expiry and usage accounting.
type Entry[T any] struct {
	Payload   T         `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	LastUsed  time.Time `json:"last_used"`
	Hits      int       `json:"hits"`
}

// Stats reports cache usage counters.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a TTL + recency bounded memo of generation results.
// Expired entries are deleted lazily on lookup; Set triggers a cleanup pass
// that first sweeps expired entries and then evicts by recency until the
// size cap holds.
type Cache[T any] struct {
	mu         sync.Mutex
	entries    map[string]*Entry[T]
	ttl        time.Duration
	maxEntries int
	hits       int64
	misses     int64
	logger     *logx.Logger

	now func() time.Time // Injectable clock for tests
}

// New creates a cache with the given TTL and size cap. Non-positive arguments
// fall back to the defaults.
func New[T any](ttl time.Duration, maxEntries int) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache[T]{
		entries:    make(map[string]*Entry[T]),
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logx.NewLogger("cache"),
		now:        time.Now,
	}
}

// Get returns the payload for key if present and unexpired. An expired entry
// is removed and reported as a miss; a live hit refreshes recency and
// increments the entry's hit counter.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if now.After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.misses++
		c.logger.Debug("expired entry dropped: %s", key)
		return zero, false
	}

	entry.Hits++
	entry.LastUsed = now
	c.hits++
	return entry.Payload, true
}

// Set stores a fresh entry for key with expiry = now + TTL, then cleans up.
func (c *Cache[T]) Set(key string, payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &Entry[T]{
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
		LastUsed:  now,
	}
	c.cleanup(now)
}

// cleanup removes expired entries, then evicts least-recently-used entries
// until the size cap holds. Caller must hold the lock.
func (c *Cache[T]) cleanup(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyed struct {
		key      string
		lastUsed time.Time
	}
	byRecency := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		byRecency = append(byRecency, keyed{key: key, lastUsed: entry.LastUsed})
	}
	sort.Slice(byRecency, func(i, j int) bool {
		return byRecency[i].lastUsed.Before(byRecency[j].lastUsed)
	})

	evicted := 0
	for i := 0; len(c.entries) > c.maxEntries && i < len(byRecency); i++ {
		delete(c.entries, byRecency[i].key)
		evicted++
	}
	if evicted > 0 {
		c.logger.Debug("evicted %d entries over cap %d", evicted, c.maxEntries)
	}
}

// Delete removes an entry.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops all entries.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[T])
}

// Size returns the current number of entries, including any not yet swept.
func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetStats returns usage counters.
func (c *Cache[T]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// Export returns a serializable copy of all live entries, for persisting the
// cache alongside a session snapshot.
func (c *Cache[T]) Export() map[string]Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make(map[string]Entry[T], len(c.entries))
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		out[key] = *entry
	}
	return out
}

// Import rehydrates entries from an exported snapshot, silently discarding
// entries whose expiry has already elapsed. Existing entries with the same
// key are overwritten.
func (c *Cache[T]) Import(entries map[string]Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key := range entries {
		entry := entries[key]
		if now.After(entry.ExpiresAt) {
			continue
		}
		c.entries[key] = &entry
	}
	c.cleanup(now)
}

// Fingerprint derives a deterministic cache key from request parts. Parts are
// trimmed and joined so that equivalent requests share a key regardless of
// incidental whitespace.
func Fingerprint(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.TrimSpace(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return fmt.Sprintf("%x", sum[:16])
}
