package github

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const redisCachePrefix = "gitgame:github:"

// Cache stores raw provider responses keyed by request URL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

type LRUCache struct {
	cache *lru.Cache[string, []byte]
}

func NewLRUCache(size int) (*LRUCache, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}

	return &LRUCache{cache: cache}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.cache.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key string, value []byte) {
	c.cache.Add(key, value)
}

func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// RedisCache shares cached responses between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	_ = c.client.Set(ctx, redisCachePrefix+key, value, c.ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	return nil
}
