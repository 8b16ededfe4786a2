// Package cache implements edge cache tier for responses.
package cache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/response"
)

// ErrNotFound is returned when response is not in cache
var ErrNotFound = errors.New("not found")

// ResponseCache stores responses under cache key for their TTL
type ResponseCache interface {
	Set(ctx context.Context, key string, res *response.Response) error
	Get(ctx context.Context, key string) (*response.Response, error)
	Delete(ctx context.Context, key string) error
}

// Create returns cache for given configuration
func Create(cacheCfg config.CacheCfg) ResponseCache {
	switch cacheCfg.Type {
	case "redis":
		return NewRedis(cacheCfg.Address, cacheCfg.ClientConfig)
	case "redis-cluster":
		return NewRedisCluster(cacheCfg.Address, cacheCfg.ClientConfig)
	case "none":
		return NopCache{}
	default:
		return NewMemoryCache(cacheCfg.CacheSize)
	}
}

// NopCache never stores anything
type NopCache struct{}

// Set do nothing
func (NopCache) Set(_ context.Context, _ string, _ *response.Response) error {
	return nil
}

// Get always returns ErrNotFound
func (NopCache) Get(_ context.Context, _ string) (*response.Response, error) {
	return nil, ErrNotFound
}

// Delete do nothing
func (NopCache) Delete(_ context.Context, _ string) error {
	return nil
}
