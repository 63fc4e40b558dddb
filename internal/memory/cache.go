package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// CachedStore wraps a Store with a ristretto read cache. Each agent has
// an epoch counter baked into cache keys; writes bump the epoch, so
// stale entries are never served and simply age out.
type CachedStore struct {
	inner  Store
	cache  *ristretto.Cache
	epochs sync.Map // uuid.UUID -> *atomic.Int64
	logger *zap.Logger
}

// NewCachedStore builds the caching layer over inner.
func NewCachedStore(inner Store, logger *zap.Logger) (*CachedStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache, logger: logger}, nil
}

func (c *CachedStore) epoch(agentID uuid.UUID) *atomic.Int64 {
	v, _ := c.epochs.LoadOrStore(agentID, atomic.NewInt64(0))
	return v.(*atomic.Int64)
}

// Store delegates to the inner store and invalidates the agent's reads.
func (c *CachedStore) Store(ctx context.Context, agentID uuid.UUID, event string, sentiment, importance float64) (int64, error) {
	id, err := c.inner.Store(ctx, agentID, event, sentiment, importance)
	if err != nil {
		return 0, err
	}
	c.epoch(agentID).Inc()
	return id, nil
}

// Retrieve serves from cache when the agent's epoch still matches,
// otherwise reads through and caches the result.
func (c *CachedStore) Retrieve(ctx context.Context, agentID uuid.UUID, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	key := fmt.Sprintf("%s:%d:%d", agentID, c.epoch(agentID).Load(), limit)
	if v, ok := c.cache.Get(key); ok {
		if cached, ok := v.([]Record); ok {
			out := make([]Record, len(cached))
			copy(out, cached)
			return out, nil
		}
	}

	records, err := c.inner.Retrieve(ctx, agentID, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, records, int64(len(records)+1))

	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

// Prune delegates to the inner store; reads are invalidated only when
// something was actually removed.
func (c *CachedStore) Prune(ctx context.Context, agentID uuid.UUID, keepLast int) (int64, error) {
	removed, err := c.inner.Prune(ctx, agentID, keepLast)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.epoch(agentID).Inc()
	}
	return removed, nil
}

// Close releases the cache and the inner store.
func (c *CachedStore) Close() error {
	c.cache.Close()
	return c.inner.Close()
}
