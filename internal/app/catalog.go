package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/tempo/storefront-service/internal/domain"
	"github.com/tempo/storefront-service/internal/metrics"
)

const defaultCatalogKey = "storefront:catalog:prices"

// PriceLister is the payment provider's catalog.
type PriceLister interface {
	ListPrices(ctx context.Context) ([]domain.PricePlan, error)
}

// CatalogCache keeps the provider price list in Redis. Concurrent misses share
// one provider call. Without a Redis client it passes straight through.
type CatalogCache struct {
	rdb          redis.UniversalClient
	source       PriceLister
	key          string
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	group        singleflight.Group
}

// NewCatalogCache creates a cache in front of source. rdb may be nil.
func NewCatalogCache(rdb redis.UniversalClient, source PriceLister, prefix string, ttl time.Duration, logger *slog.Logger) *CatalogCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	key := defaultCatalogKey
	if trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":"); trimmed != "" {
		key = trimmed + ":catalog:prices"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogCache{
		rdb:          rdb,
		source:       source,
		key:          key,
		ttl:          ttl,
		fetchTimeout: 15 * time.Second,
		logger:       logger,
	}
}

// Plans returns the cached catalog, loading it from the provider on a miss.
func (c *CatalogCache) Plans(ctx context.Context) ([]domain.PricePlan, error) {
	if plans, ok := c.cached(ctx); ok {
		metrics.CatalogFetches.WithLabelValues("cache", "hit").Inc()
		return plans, nil
	}

	result, err, _ := c.group.Do(c.key, func() (interface{}, error) {
		// Detached so one caller giving up does not fail the others.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.load(loadCtx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.PricePlan), nil
}

// Refresh reloads the catalog from the provider and overwrites the cache.
func (c *CatalogCache) Refresh(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

func (c *CatalogCache) load(ctx context.Context) ([]domain.PricePlan, error) {
	start := time.Now()
	plans, err := c.source.ListPrices(ctx)
	metrics.CatalogFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogFetches.WithLabelValues("provider", "error").Inc()
		return nil, fmt.Errorf("list prices: %w", err)
	}
	metrics.CatalogFetches.WithLabelValues("provider", "ok").Inc()

	if plans == nil {
		plans = []domain.PricePlan{}
	}
	c.store(ctx, plans)
	return plans, nil
}

func (c *CatalogCache) cached(ctx context.Context) ([]domain.PricePlan, bool) {
	if c.rdb == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read failed", "key", c.key, "error", err)
		}
		return nil, false
	}

	var plans []domain.PricePlan
	if err := json.Unmarshal(payload, &plans); err != nil {
		c.logger.Warn("catalog cache entry is corrupt", "key", c.key, "error", err)
		return nil, false
	}
	return plans, true
}

func (c *CatalogCache) store(ctx context.Context, plans []domain.PricePlan) {
	if c.rdb == nil {
		return
	}
	payload, err := json.Marshal(plans)
	if err != nil {
		c.logger.Warn("failed to encode catalog for cache", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", "key", c.key, "error", err)
	}
}
