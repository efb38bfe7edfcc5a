package session

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fits-map-service/internal/cache"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

// Kinds of cached value.
const (
	KindTypes   = "types"
	KindSites   = "sites"
	KindResults = "results"
	KindSeries  = "series"
)

// CacheKey identifies a cached FITS result. Sites is a comma separated,
// order preserving site list; Region is a WKT polygon. Days only applies
// to single-site series.
type CacheKey struct {
	Kind   string
	TypeID string
	Sites  string
	Region string
	Days   int
}

// SitesKey builds the key for a site list.
func SitesKey(typeID, region string) CacheKey {
	return CacheKey{Kind: KindSites, TypeID: typeID, Region: region}
}

// ResultsKey builds the key for observation results at siteIDs.
func ResultsKey(typeID string, siteIDs []string) CacheKey {
	return CacheKey{Kind: KindResults, TypeID: typeID, Sites: strings.Join(siteIDs, ",")}
}

// SeriesKey builds the key for a single-site series.
func SeriesKey(typeID, networkID, siteID string, days int) CacheKey {
	return CacheKey{Kind: KindSeries, TypeID: typeID, Sites: networkID + "." + siteID, Days: days}
}

// Cache holds a session's fetched results. Each type has a generation that
// InvalidateType advances; PutAt drops values fetched under an older one.
type Cache struct {
	lru     *cache.LRU[CacheKey, any]
	metrics *observability.Metrics

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCache creates a cache of at most size entries, each living for ttl.
func NewCache(size int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Cache {
	return &Cache{
		lru:         cache.New[CacheKey, any](size, ttl, clock),
		metrics:     metrics,
		generations: make(map[string]uint64),
	}
}

// Generation returns the current generation of typeID. Read it before
// starting a fetch and pass it to PutAt.
func (c *Cache) Generation(typeID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[typeID]
}

// Get returns the value stored under key.
func (c *Cache) Get(key CacheKey) (any, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.metrics.CacheLookups.WithLabelValues("session", "hit").Inc()
	} else {
		c.metrics.CacheLookups.WithLabelValues("session", "miss").Inc()
	}
	return v, ok
}

// Put stores v under key, replacing any previous value.
func (c *Cache) Put(key CacheKey, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Put(key, v)
}

// PutAt stores v only if key's type is still at generation gen, and reports
// whether it did.
func (c *Cache) PutAt(key CacheKey, v any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.TypeID] != gen {
		return false
	}
	c.lru.Put(key, v)
	return true
}

// InvalidateType drops every entry for typeID and returns how many were
// removed. The type list itself is kept. Fetches started before the call
// are no longer stored.
func (c *Cache) InvalidateType(typeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[typeID]++
	return c.lru.DeleteFunc(func(k CacheKey) bool {
		return k.TypeID == typeID && k.Kind != KindTypes
	})
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	return c.lru.Len()
}
