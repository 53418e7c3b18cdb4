package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voyagen/mbient/internal/cache"
	"github.com/voyagen/mbient/internal/logger"
	"github.com/voyagen/mbient/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlSources  = 2 * time.Minute
	ttlSource   = 5 * time.Minute
	ttlChannels = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer.
// Reads are served from cache when possible; ReplaceChannels invalidates
// the keys of the affected source.
type CachedStore struct {
	inner Store
	cache *cache.Redis
	log   logger.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, log logger.Logger) *CachedStore {
	return &CachedStore{inner: inner, cache: c, log: log}
}

func (c *CachedStore) ListSources(ctx context.Context) ([]models.Source, error) {
	const key = "sources:all"
	if v, err := cache.Get[[]models.Source](ctx, c.cache, key); err == nil {
		return v, nil
	}
	sources, err := c.inner.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, sources, ttlSources); err != nil {
		c.log.Warnf("cache: set %s: %v", key, err)
	}
	return sources, nil
}

func (c *CachedStore) GetSourceByURL(ctx context.Context, sourceURL string) (*models.Source, error) {
	key := sourceKey(sourceURL)
	if v, err := cache.Get[models.Source](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	src, err := c.inner.GetSourceByURL(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, src, ttlSource); err != nil {
		c.log.Warnf("cache: set %s: %v", key, err)
	}
	return src, nil
}

func (c *CachedStore) ListChannels(ctx context.Context, sourceURL string) ([]models.Channel, error) {
	key := channelsKey(sourceURL)
	if v, err := cache.Get[[]models.Channel](ctx, c.cache, key); err == nil {
		return v, nil
	}
	channels, err := c.inner.ListChannels(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, channels, ttlChannels); err != nil {
		c.log.Warnf("cache: set %s: %v", key, err)
	}
	return channels, nil
}

func (c *CachedStore) ReplaceChannels(ctx context.Context, sourceURL, name string, channels []models.Channel) (int64, error) {
	id, err := c.inner.ReplaceChannels(ctx, sourceURL, name, channels)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, sourceKey(sourceURL), channelsKey(sourceURL), "sources:all")
	return id, nil
}

// Purge drops every cached source and channel list. Run it when the cache may
// hold rows from another database, e.g. at startup.
func (c *CachedStore) Purge(ctx context.Context) error {
	for _, pattern := range []string{"source:*", "sources:*", "channels:*"} {
		if err := cache.DelPattern(ctx, c.cache, pattern); err != nil {
			return err
		}
	}
	return nil
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warnf("cache: del %v: %v", keys, err)
	}
}

func sourceKey(sourceURL string) string {
	return "source:" + urlHash(sourceURL)
}

func channelsKey(sourceURL string) string {
	return "channels:" + urlHash(sourceURL)
}

// urlHash produces a short deterministic hash of a source URL for use in cache keys.
func urlHash(u string) string {
	h := sha256.Sum256([]byte(u))
	return fmt.Sprintf("%x", h[:8])
}
