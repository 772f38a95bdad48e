package achievement

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var (
	catalogCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "achievement_catalog_cache_hits_total"})
	catalogCacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "achievement_catalog_cache_miss_total"})
)

// catalogEntry pairs an achievement with its already-parsed requirement so
// the hot path never re-unmarshals JSON.
type catalogEntry struct {
	achievement *Achievement
	requirement *Requirement
	loadedAt    time.Time
}

// CatalogCache keeps the active achievements grouped by action. Events for
// the same action within the TTL share one catalog load; concurrent misses
// collapse through singleflight.
type CatalogCache struct {
	mu    sync.RWMutex
	items map[string][]*catalogEntry
	ttl   time.Duration
	group singleflight.Group
}

func NewCatalogCache(ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		items: make(map[string][]*catalogEntry),
		ttl:   ttl,
	}
}

func (c *CatalogCache) get(action string) ([]*catalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.items[action]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && len(entries) > 0 && time.Since(entries[0].loadedAt) > c.ttl {
		return nil, false
	}
	return entries, true
}

func (c *CatalogCache) set(action string, entries []*catalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[action] = entries
}

// Invalidate drops the whole cache, e.g. after catalog writes.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string][]*catalogEntry)
}

// GetOrLoad returns the cached entries for the action, loading via fn on
// miss or expiry.
func (c *CatalogCache) GetOrLoad(action string, fn func() ([]*catalogEntry, error)) ([]*catalogEntry, error) {
	if entries, ok := c.get(action); ok {
		catalogCacheHits.Inc()
		return entries, nil
	}
	catalogCacheMiss.Inc()

	v, err, _ := c.group.Do(action, func() (any, error) {
		if entries, ok := c.get(action); ok {
			return entries, nil
		}
		entries, err := fn()
		if err != nil {
			return nil, err
		}
		c.set(action, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*catalogEntry), nil
}
