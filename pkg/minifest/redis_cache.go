package minifest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/packforge/packd/pkg/langpack"
)

// DefaultTTL bounds how long a cached minifest lives without a forced
// refresh. Forced rebuilds on publish make this a backstop, not the primary
// consistency mechanism.
const DefaultTTL = 24 * time.Hour

// RedisCache is a Redis-backed Cache shared across service instances.
type RedisCache struct {
	client  *redis.Client
	builder *Builder
	ttl     time.Duration
}

// NewRedisCache connects to Redis at addr.
func NewRedisCache(addr, password string, db int, builder *Builder) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, builder: builder, ttl: DefaultTTL}
}

// NewRedisCacheWithClient wires an existing client (used by tests with
// miniredis-style fakes or a shared pool).
func NewRedisCacheWithClient(client *redis.Client, builder *Builder) *RedisCache {
	return &RedisCache{client: client, builder: builder, ttl: DefaultTTL}
}

func cacheKey(uuid string) string {
	return "minifest:" + uuid
}

func (c *RedisCache) GetOrBuild(ctx context.Context, pack *langpack.LangPack, force bool) ([]byte, string, error) {
	if !pack.Active {
		return nil, "", ErrNotAvailable
	}

	key := cacheKey(pack.UUID)
	if force {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return nil, "", fmt.Errorf("minifest: cache invalidate: %w", err)
		}
	} else {
		fields, err := c.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, "", fmt.Errorf("minifest: cache read: %w", err)
		}
		if doc, ok := fields["doc"]; ok {
			return []byte(doc), fields["etag"], nil
		}
	}

	doc, etag, err := c.builder.Build(pack)
	if err != nil {
		return nil, "", err
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, "doc", doc, "etag", etag)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, "", fmt.Errorf("minifest: cache write: %w", err)
	}
	return doc, etag, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, uuid string) error {
	if err := c.client.Del(ctx, cacheKey(uuid)).Err(); err != nil {
		return fmt.Errorf("minifest: cache invalidate: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
