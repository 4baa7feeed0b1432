// internal/estimation/cache/cache.go

// Package cache stores successful estimations keyed by stock identifier.
// Only estimates with a positive price are written, so transient marketplace
// failures and zero-result searches are retried on the next request instead
// of poisoning the cache for a day.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/estimation/model"
)

const keyPrefix = "estimation:"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func New(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{
			"component": "estimation-cache",
		}),
		now: time.Now,
	}
}

// Get returns the cached estimate for a stock id. The entry's age is checked
// on every read; an entry past the TTL is a miss even if the background
// sweep has not removed it yet.
func (c *Cache) Get(ctx context.Context, stockID string) (model.Estimate, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+stockID).Result()
	if err == redis.Nil {
		return model.Estimate{}, false, nil
	}
	if err != nil {
		return model.Estimate{}, false, fmt.Errorf("cache get: %w", err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// A corrupt entry is unusable; drop it and report a miss.
		c.logger.Warn("dropping unreadable cache entry", map[string]interface{}{
			"stockId": stockID,
		})
		c.client.Del(ctx, keyPrefix+stockID)
		return model.Estimate{}, false, nil
	}

	if c.now().Sub(entry.CreatedAt) >= c.ttl {
		return model.Estimate{}, false, nil
	}
	return entry.Estimate, true, nil
}

// Put stores a successful estimation. Null, zero or negative prices are
// refused; that is the caller's bug, not a transient condition.
func (c *Cache) Put(ctx context.Context, stockID string, est model.Estimate) error {
	if !est.Valid() {
		return errors.NewCacheWriteError(fmt.Errorf("refusing to cache estimate without a positive price (stockId=%s)", stockID))
	}

	entry := model.CacheEntry{
		Estimate:  est,
		CreatedAt: c.now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.NewCacheWriteError(err)
	}

	if err := c.client.Set(ctx, keyPrefix+stockID, data, c.ttl).Err(); err != nil {
		return errors.NewCacheWriteError(err)
	}
	return nil
}

// Sweep deletes entries older than the TTL. Storage hygiene only: reads
// re-check age themselves, so correctness never depends on sweep timing.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	var removed int
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var entry model.CacheEntry
		stale := json.Unmarshal([]byte(raw), &entry) != nil ||
			c.now().Sub(entry.CreatedAt) >= c.ttl
		if stale {
			if err := c.client.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache sweep: %w", err)
	}
	return removed, nil
}

// RunSweeper runs Sweep every interval until the context is canceled.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.Sweep(ctx)
			if err != nil {
				c.logger.WithError(err).Warn("cache sweep failed", nil)
				continue
			}
			if removed > 0 {
				c.logger.Info("cache sweep removed stale entries", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}
