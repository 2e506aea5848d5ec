package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/district-feed/pkg/logger"
)

const mediaURLKeyPrefix = "media:url:"

// CachedResolver is a cache-aside wrapper over a MediaResolver. Resolved
// URLs live only in redis with a TTL; the post store never sees them.
// Cache failures fall through to the underlying resolver.
type CachedResolver struct {
	next  MediaResolver
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedResolver(next MediaResolver, cache *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, cache: cache, ttl: ttl}
}

func (r *CachedResolver) ResolveMediaURL(ctx context.Context, mediaRef string) (string, error) {
	key := mediaURLKeyPrefix + mediaRef
	url, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, redis.Nil) {
		logger.Warn("media url cache read failed", zap.String("media_ref", mediaRef), zap.Error(err))
	}

	url, err = r.next.ResolveMediaURL(ctx, mediaRef)
	if err != nil {
		return "", err
	}
	if err := r.cache.Set(ctx, key, url, r.ttl).Err(); err != nil {
		logger.Warn("media url cache write failed", zap.String("media_ref", mediaRef), zap.Error(err))
	}
	return url, nil
}
