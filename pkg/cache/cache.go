// Package cache provides an in-process TTL cache used by the policy
// resolver and the OIDC surface. Expiry is lazy on read plus a periodic
// sweep; expired entries read as absent.
package cache

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/identra/identra/pkg/domain"
)

// TTL sentinel results.
const (
	// TTLKeyAbsent is returned by TTL for a missing (or expired) key.
	TTLKeyAbsent int64 = -2
	// TTLNoExpiry is returned by TTL for a key without expiry.
	TTLNoExpiry int64 = -1
)

// NoExpiry as a Set TTL stores the entry without expiry.
const NoExpiry time.Duration = 0

type entry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Keys    int64   `json:"keys"`
	HitRate float64 `json:"hitRate"`
	Closed  bool    `json:"closed"`
}

type cacheConfig struct {
	defaultTTL    time.Duration
	sweepInterval time.Duration
	keyPrefix     string
}

// Option configures a Cache.
type Option func(*cacheConfig)

// WithDefaultTTL sets the TTL applied when Set receives none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *cacheConfig) { c.defaultTTL = ttl }
}

// WithSweepInterval sets how often expired entries are swept.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *cacheConfig) { c.sweepInterval = interval }
}

// WithKeyPrefix namespaces all keys; Keys strips it from results.
func WithKeyPrefix(prefix string) Option {
	return func(c *cacheConfig) { c.keyPrefix = prefix }
}

// Cache is a thread-safe in-memory TTL cache.
type Cache struct {
	config cacheConfig

	mu     sync.RWMutex
	items  map[string]*entry
	hits   int64
	misses int64

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its sweep loop.
func New(opts ...Option) *Cache {
	config := cacheConfig{
		defaultTTL:    5 * time.Minute,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&config)
	}

	c := &Cache{
		config:   config,
		items:    make(map[string]*entry),
		stopChan: make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *Cache) key(key string) string {
	return c.config.keyPrefix + key
}

// Get returns the value, or (nil, false) for an absent or expired key.
// Expired entries are deleted on the way out.
func (c *Cache) Get(key string) (any, bool) {
	full := c.key(key)
	now := time.Now()

	c.mu.RLock()
	item, ok := c.items[full]
	c.mu.RUnlock()

	if ok && !item.expired(now) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return item.value, true
	}

	c.mu.Lock()
	c.misses++
	if ok {
		// Re-check under the write lock; Set may have replaced it.
		if item, ok := c.items[full]; ok && item.expired(now) {
			delete(c.items, full)
		}
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores a value. A TTL of NoExpiry (0) stores without expiry; the
// variadic form without a TTL applies the default.
func (c *Cache) Set(key string, value any, ttl ...time.Duration) {
	effective := c.config.defaultTTL
	if len(ttl) > 0 {
		effective = ttl[0]
	}

	item := &entry{value: value}
	if effective != NoExpiry {
		item.expiresAt = time.Now().Add(effective)
	}

	c.mu.Lock()
	c.items[c.key(key)] = item
	c.mu.Unlock()
}

// Delete removes a key and reports whether it was present and live.
func (c *Cache) Delete(key string) bool {
	full := c.key(key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[full]
	if !ok {
		return false
	}
	delete(c.items, full)
	return !item.expired(now)
}

// Exists reports whether the key is present and not expired. It does not
// count as a hit or miss.
func (c *Cache) Exists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[c.key(key)]
	return ok && !item.expired(time.Now())
}

// MGet returns the values for the given keys; absent or expired keys yield
// nil at their position.
func (c *Cache) MGet(keys ...string) []any {
	values := make([]any, len(keys))
	for i, key := range keys {
		values[i], _ = c.Get(key)
	}
	return values
}

// MSet stores multiple key/value pairs with the default TTL.
func (c *Cache) MSet(pairs map[string]any) {
	for key, value := range pairs {
		c.Set(key, value)
	}
}

// MDel removes the given keys and returns how many were present and live.
func (c *Cache) MDel(keys ...string) int {
	removed := 0
	for _, key := range keys {
		if c.Delete(key) {
			removed++
		}
	}
	return removed
}

// Keys lists live keys matching a glob pattern with * wildcards. Results
// have the configured prefix stripped.
func (c *Cache) Keys(pattern string) ([]string, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for full, item := range c.items {
		if item.expired(now) {
			continue
		}
		key := strings.TrimPrefix(full, c.config.keyPrefix)
		if re.MatchString(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// compileGlob turns a * glob into an anchored regexp; all other characters
// match literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(pattern, "*") {
		if b.Len() > 1 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	// A trailing * is lost by Split; restore it.
	if strings.HasSuffix(pattern, "*") {
		b.WriteString(".*")
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, domain.InvalidArgument("CACHE-Pattern", "invalid key pattern").WithParent(err)
	}
	return re, nil
}

// Expire sets a new TTL on an existing live key and reports success.
func (c *Cache) Expire(key string, ttl time.Duration) bool {
	full := c.key(key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[full]
	if !ok || item.expired(now) {
		return false
	}
	if ttl == NoExpiry {
		item.expiresAt = time.Time{}
	} else {
		item.expiresAt = now.Add(ttl)
	}
	return true
}

// TTL reports the remaining lifetime of a key in whole seconds (ceiling):
// TTLKeyAbsent (-2) for a missing or expired key, TTLNoExpiry (-1) for a
// key without expiry. Never negative otherwise.
func (c *Cache) TTL(key string) int64 {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[c.key(key)]
	if !ok || item.expired(now) {
		return TTLKeyAbsent
	}
	if item.expiresAt.IsZero() {
		return TTLNoExpiry
	}
	remaining := int64(math.Ceil(item.expiresAt.Sub(now).Seconds()))
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Stats returns current counters. HitRate is zero when nothing was asked.
func (c *Cache) Stats() Stats {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var live int64
	for _, item := range c.items {
		if !item.expired(now) {
			live++
		}
	}

	stats := Stats{Hits: c.hits, Misses: c.misses, Keys: live, Closed: c.closed()}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Clear removes every entry; counters keep accumulating.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*entry)
	c.mu.Unlock()
}

// Health reports an error once the cache has been closed.
func (c *Cache) Health() error {
	if c.closed() {
		return domain.Unavailable("CACHE-Closed", "cache is closed")
	}
	return nil
}

// Close stops the sweep loop and drops all entries. Idempotent.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.Clear()
	})
}

func (c *Cache) closed() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// sweep periodically removes expired entries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(c.config.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, item := range c.items {
				if item.expired(now) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
