package fits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fits-map-service/internal/cache"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

// Store holds raw FITS responses shared between sessions.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedFetcher wraps a Fetcher with a response Store. Keys carry a
// per-type generation so InvalidateType makes older entries unreachable without
// having to find them in the store.
type CachedFetcher struct {
	inner   Fetcher
	store   Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner Fetcher, store Store, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner:       inner,
		store:       store,
		ttl:         ttl,
		metrics:     metrics,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

// Fetch serves req from the store when possible. Store errors are logged
// and treated as misses; only successful responses are stored.
func (c *CachedFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	key := c.key(req)

	body, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("response cache get failed", "key", key, "error", err)
	}
	if ok {
		c.metrics.CacheLookups.WithLabelValues("response", "hit").Inc()
		return body, nil
	}
	c.metrics.CacheLookups.WithLabelValues("response", "miss").Inc()

	body, err = c.inner.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, body, c.ttl); err != nil {
		c.logger.Warn("response cache set failed", "key", key, "error", err)
	}
	return body, nil
}

// InvalidateType drops every cached response for typeID.
func (c *CachedFetcher) InvalidateType(typeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[typeID]++
}

func (c *CachedFetcher) key(req Request) string {
	c.mu.Lock()
	gen := c.generations[req.TypeID]
	c.mu.Unlock()
	return fmt.Sprintf("fits:%s:%d:%s?%s#%s", req.TypeID, gen, req.Path, req.Params.Encode(), req.Accept)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	lru *cache.LRU[string, []byte]
}

// NewMemoryStore creates a Store holding at most maxEntries responses.
func NewMemoryStore(maxEntries int, clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{lru: cache.New[string, []byte](maxEntries, 0, clock)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.lru.PutTTL(key, value, ttl)
	return nil
}
