package cache

import (
	"context"
	"time"

	redisCache "github.com/go-redis/cache/v8"
	goRedis "github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack"

	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

const keyPrefix = "imgedge-v1:"

// RedisCache store response in redis
type RedisCache struct {
	client *redisCache.Cache
}

func newRedisCache(client goRedis.UniversalClient) *RedisCache {
	return &RedisCache{redisCache.New(&redisCache.Options{
		Redis:      client,
		LocalCache: redisCache.NewTinyLFU(10, time.Minute),
	})}
}

// NewRedis create connection to redis and update it config from clientConfig map
func NewRedis(redisAddress []string, clientConfig map[string]string) *RedisCache {
	return newRedisCache(getRedisClient(redisAddress, clientConfig, false))
}

// NewRedisCluster create connection to redis cluster
func NewRedisCluster(redisAddress []string, clientConfig map[string]string) *RedisCache {
	return newRedisCache(getRedisClient(redisAddress, clientConfig, true))
}

func (c *RedisCache) getKey(key string) string {
	return keyPrefix + key
}

// Set put response into cache
func (c *RedisCache) Set(ctx context.Context, key string, res *response.Response) error {
	if _, err := res.Body(); err != nil {
		return err
	}

	v, err := msgpack.Marshal(res)
	if err != nil {
		return err
	}

	monitoring.Report().Inc("cache_ratio;status:set")
	return c.client.Set(ctx, &redisCache.Item{
		Key:   c.getKey(key),
		Value: v,
		TTL:   time.Second * time.Duration(res.GetTTL()),
	})
}

// Get returns response from cache or ErrNotFound
func (c *RedisCache) Get(ctx context.Context, key string) (*response.Response, error) {
	var buf []byte
	if err := c.client.Get(ctx, c.getKey(key), &buf); err != nil {
		monitoring.Report().Inc("cache_ratio;status:miss")
		if err == redisCache.ErrCacheMiss {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var res response.Response
	if err := msgpack.Unmarshal(buf, &res); err != nil {
		monitoring.Report().Inc("cache_ratio;status:miss")
		return nil, err
	}

	monitoring.Report().Inc("cache_ratio;status:hit")
	res.SetCacheHit()
	return &res, nil
}

// Delete remove response from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.getKey(key))
}
