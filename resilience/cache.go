package resilience

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parley-ai/parley/llm"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultCacheTTL is how long a cached response stays fresh.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries bounds the cache table size.
	DefaultCacheMaxEntries = 1000
	// sweepSchedule proactively deletes expired entries.
	sweepSchedule = "@every 60s"
)

// CacheConfig holds response cache options.
type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

// DefaultCacheConfig returns a disabled cache with a 5 minute TTL and room
// for 1000 entries. Caching changes observable behavior, so it is opt-in.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    false,
		TTL:        DefaultCacheTTL,
		MaxEntries: DefaultCacheMaxEntries,
	}
}

func (c CacheConfig) normalized() CacheConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultCacheMaxEntries
	}
	return c
}

type cacheEntry struct {
	resp       *llm.Response
	insertedAt time.Time
}

// ResponseCache stores responses keyed by a request fingerprint, bounded by
// TTL and by entry count with batch FIFO eviction. A background sweep
// deletes expired entries every minute.
type ResponseCache struct {
	cfg     CacheConfig
	mu      sync.Mutex
	entries map[string]cacheEntry
	cron    *cron.Cron
	logger  zerolog.Logger
	now     func() time.Time
}

// NewResponseCache creates a response cache and, when enabled, starts its
// background sweep. Call Stop to halt the sweeper.
func NewResponseCache(cfg CacheConfig, logger zerolog.Logger) *ResponseCache {
	c := &ResponseCache{
		cfg:     cfg.normalized(),
		entries: make(map[string]cacheEntry),
		logger:  logger.With().Str("component", "response_cache").Logger(),
		now:     time.Now,
	}
	if cfg.Enabled {
		c.cron = cron.New()
		if _, err := c.cron.AddFunc(sweepSchedule, c.sweep); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to schedule cache sweep")
		} else {
			c.cron.Start()
		}
	}
	return c
}

// Stop halts the background sweep. The cache remains usable.
func (c *ResponseCache) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}

// Fingerprint derives a stable cache key from the request-defining fields:
// model, the ordered (role, content) pairs of every message, temperature,
// and the ordered tool identities.
func Fingerprint(req *llm.Request) string {
	var sb strings.Builder
	sb.WriteString(req.Model)
	sb.WriteByte(0x1e)
	for _, msg := range req.Messages {
		sb.WriteString(string(msg.Role))
		sb.WriteByte(0x1f)
		if msg.Content != nil {
			sb.WriteString(*msg.Content)
		} else {
			// nil content must hash differently from an empty string
			sb.WriteByte(0x00)
		}
		sb.WriteByte(0x1e)
	}
	if req.Temperature != nil {
		fmt.Fprintf(&sb, "%g", *req.Temperature)
	}
	sb.WriteByte(0x1e)
	for _, t := range req.Tools {
		sb.WriteString(t.Name)
		sb.WriteByte(0x1f)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the stored response for key if present and fresh. Expired
// entries are evicted on access.
func (c *ResponseCache) Get(key string) (*llm.Response, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) > c.cfg.TTL {
		delete(c.entries, key)
		return nil, false
	}
	return entry.resp, true
}

// Put inserts or overwrites the response for key, then evicts the oldest
// entries in a batch if the table exceeds MaxEntries.
func (c *ResponseCache) Put(key string, resp *llm.Response) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{resp: resp, insertedAt: c.now()}
	c.evictLocked()
}

// Delete removes the entry for key.
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently stored.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch returns the cached response for key on a hit. On a miss it invokes
// compute, caches only successful results, and passes errors through
// uncached.
func (c *ResponseCache) Fetch(key string, compute func() (*llm.Response, error)) (*llm.Response, error) {
	if resp, ok := c.Get(key); ok {
		return resp, nil
	}
	resp, err := compute()
	if err != nil {
		return nil, err
	}
	c.Put(key, resp)
	return resp, nil
}

// evictLocked removes the oldest (size - max + max/10) entries by insertion
// time once the table exceeds MaxEntries. Evicting a batch rather than one
// entry at a time keeps insertions from thrashing at the cap.
func (c *ResponseCache) evictLocked() {
	size := len(c.entries)
	if size <= c.cfg.MaxEntries {
		return
	}
	toEvict := size - c.cfg.MaxEntries + c.cfg.MaxEntries/10
	if toEvict > size {
		toEvict = size
	}

	type keyed struct {
		key        string
		insertedAt time.Time
	}
	all := make([]keyed, 0, size)
	for k, e := range c.entries {
		all = append(all, keyed{key: k, insertedAt: e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].insertedAt.Before(all[j].insertedAt)
	})
	for _, e := range all[:toEvict] {
		delete(c.entries, e.key)
	}
	c.logger.Debug().Int("evicted", toEvict).Int("remaining", len(c.entries)).Msg("Cache batch eviction")
}

// sweep deletes all entries older than the TTL.
func (c *ResponseCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.cfg.TTL)
	removed := 0
	for k, e := range c.entries {
		if e.insertedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("Cache sweep removed expired entries")
	}
}
