package services

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// CachedProvider wraps a [Provider] and caches resolution results for a TTL.
type CachedProvider struct {
	Provider
	store  *ristretto.Cache[string, []ResolvedItem]
	group  singleflight.Group
	ttl    time.Duration
	logger *log.Logger
}

// NewCachedProvider wraps inner with a ristretto cache sized from cfg.
func NewCachedProvider(inner Provider, cfg shared.CacheConfig, logger *log.Logger) (*CachedProvider, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = logger.WithPrefix("cache")

	numCounters, maxCost := cfg.NumCounters, cfg.MaxCost
	if numCounters <= 0 {
		numCounters = 10_000
	}
	if maxCost <= 0 {
		maxCost = 1_000
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, []ResolvedItem]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
		OnReject: func(item *ristretto.Item[[]ResolvedItem]) {
			logger.Debugf("Cache item rejected: key=%v", item.Key)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &CachedProvider{Provider: inner, store: store, ttl: cfg.ResolveTTL.Duration, logger: logger}, nil
}

// ResolveItems returns a cached listing when one exists, otherwise resolves once per key
// no matter how many callers ask concurrently. Failures are not cached.
func (c *CachedProvider) ResolveItems(ctx context.Context, target string, limit int) ([]ResolvedItem, error) {
	key := resolveKey(target, limit)
	if items, ok := c.store.Get(key); ok {
		c.logger.Debug("cache hit", "target", target, "limit", limit)
		return clone(items), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if items, ok := c.store.Get(key); ok {
			return items, nil
		}
		items, err := c.Provider.ResolveItems(ctx, target, limit)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.store.SetWithTTL(key, items, 1, c.ttl)
			c.store.Wait()
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]ResolvedItem)), nil
}

// Invalidate drops the cached listing for target and limit.
func (c *CachedProvider) Invalidate(target string, limit int) {
	c.store.Del(resolveKey(target, limit))
}

// Close releases cache resources.
func (c *CachedProvider) Close() {
	c.store.Close()
}

func resolveKey(target string, limit int) string {
	if normalized, err := NormalizeTarget(target); err == nil {
		target = normalized
	}
	return fmt.Sprintf("%s|%d", target, limit)
}

func clone(items []ResolvedItem) []ResolvedItem {
	out := make([]ResolvedItem, len(items))
	copy(out, items)
	return out
}
