// Package cache implements the assistant response cache: an in-process
// LRU-by-insertion store with TTL expiry and an optional distributed mirror.
// Only simple informational exchanges are cached; anything short, stateful,
// or proposal-bearing bypasses the cache entirely.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// minMessageLen filters out greetings and acknowledgements whose answers
	// depend on conversational context.
	minMessageLen = 10
	// minResponseLen filters out terse replies not worth a cache slot.
	minResponseLen = 50

	defaultMaxEntries = 100
	minMaxEntries     = 10
	maxMaxEntries     = 1000

	defaultTTL = 30 * time.Minute
	minTTL     = time.Minute
	maxTTL     = 24 * time.Hour

	// evictFraction of entries (oldest first) removed when the cache is full.
	evictFraction = 0.2
)

// Metrics are cumulative counters since process start. Reset zeroes them
// without touching stored entries.
type Metrics struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Writes    uint64 `json:"writes"`
	Evictions uint64 `json:"evictions"`
}

// HitRate returns hits/(hits+misses), 0 when nothing has been looked up.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

type entry struct {
	response   string
	insertedAt time.Time
	expiresAt  time.Time
}

// Options configure a ResponseCache. Zero values take defaults; out-of-range
// values are clamped rather than rejected.
type Options struct {
	MaxEntries int
	TTL        time.Duration
	// Backend mirrors entries to a distributed store. Nil disables mirroring.
	Backend Backend
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// ResponseCache stores complete assistant responses keyed by a digest of the
// request shape. Entries expire after a TTL; at capacity the oldest fifth of
// entries (by insertion time) are evicted in one sweep.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry
	metrics Metrics

	maxEntries int
	ttl        time.Duration
	backend    Backend
	now        func() time.Time
	logger     *slog.Logger
}

// NewResponseCache creates a cache with clamped options.
func NewResponseCache(opts Options, logger *slog.Logger) *ResponseCache {
	maxEntries := opts.MaxEntries
	if maxEntries == 0 {
		maxEntries = defaultMaxEntries
	}
	maxEntries = min(max(maxEntries, minMaxEntries), maxMaxEntries)

	ttl := opts.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	ttl = min(max(ttl, minTTL), maxTTL)

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &ResponseCache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		backend:    opts.Backend,
		now:        now,
		logger:     logger,
	}
}

// Key derives the cache key for one request. mode identifies the provider
// and model in use; message is the last user message; signature captures the
// conversational context that shapes the answer (e.g. proposal availability,
// corpus version). The message is normalized so trivial formatting
// differences still hit.
func Key(mode, message, signature string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(message), " "))
	return hashDJB2(mode + "|" + normalized + "|" + signature)
}

// hashDJB2 renders the classic djb2 hash in base36, matching the key format
// used by the platform's other caches.
func hashDJB2(s string) string {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return strconv.FormatUint(uint64(h), 36)
}

// Cacheable reports whether a (message, response) pair qualifies for caching.
// Responses that carried proposals must pass hasProposals=true and are never
// cached: a proposal is bound to one conversational moment.
func Cacheable(message, response string, hasProposals bool) bool {
	if hasProposals {
		return false
	}
	if len(strings.TrimSpace(message)) < minMessageLen {
		return false
	}
	if len(strings.TrimSpace(response)) < minResponseLen {
		return false
	}
	return true
}

// Get returns the cached response for key, if present and fresh. The local
// tier is consulted first; on a local miss the backend (when configured) gets
// one chance before the miss is recorded.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.metrics.Hits++
		c.mu.Unlock()
		return e.response, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.backend != nil {
		if resp, ok := c.backend.Get(ctx, key); ok {
			c.mu.Lock()
			c.metrics.Hits++
			// Refilling from the backend obeys the same capacity bound as Put.
			if len(c.entries) >= c.maxEntries {
				c.evictOldest()
			}
			c.store(key, resp)
			c.mu.Unlock()
			return resp, true
		}
	}

	c.mu.Lock()
	c.metrics.Misses++
	c.mu.Unlock()
	return "", false
}

// Put stores a response under key, evicting the oldest fifth of entries when
// at capacity, and mirrors it to the backend when one is configured.
func (c *ResponseCache) Put(ctx context.Context, key, response string) {
	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.metrics.Writes++
	c.store(key, response)
	c.mu.Unlock()

	if c.backend != nil {
		c.backend.Set(ctx, key, response, c.ttl)
	}
}

// store inserts without locking; callers hold c.mu.
func (c *ResponseCache) store(key, response string) {
	now := c.now()
	c.entries[key] = entry{
		response:   response,
		insertedAt: now,
		expiresAt:  now.Add(c.ttl),
	}
}

// evictOldest removes the oldest evictFraction of entries by insertion time.
// Callers hold c.mu.
func (c *ResponseCache) evictOldest() {
	n := int(float64(c.maxEntries) * evictFraction)
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && len(c.entries) > 0; i++ {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.insertedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.insertedAt
			}
		}
		delete(c.entries, oldestKey)
		c.metrics.Evictions++
	}
	if c.logger != nil {
		c.logger.Debug("response cache evicted oldest entries",
			slog.Int("evicted", n),
			slog.Int("remaining", len(c.entries)),
		)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Metrics returns a snapshot of the counters.
func (c *ResponseCache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// ResetMetrics zeroes the counters without dropping entries.
func (c *ResponseCache) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = Metrics{}
}
