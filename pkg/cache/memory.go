package cache

import (
	"context"
	"time"
	"unsafe"

	"github.com/karlseguin/ccache/v3"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

type (
	// MemoryCache uses memory for cache purpose
	MemoryCache struct {
		cache *ccache.Cache[responseSizeProvider]
	}

	// responseSizeProvider adapts response.Response to ccache size computation
	responseSizeProvider struct {
		*response.Response
		cachedSize int64
	}
)

// Size returns the pre-calculated size of the cached response
func (r responseSizeProvider) Size() int64 {
	return r.cachedSize
}

// calculateResponseSize computes size of buffered response with headers
func calculateResponseSize(res *response.Response) int64 {
	size := res.ContentLength
	if size < 0 {
		size = 0
	}

	headerSize := int64(unsafe.Sizeof(res.Headers))
	for k, v := range res.Headers {
		headerSize += int64(len(k))
		for i := 0; i < len(v); i++ {
			headerSize += int64(len(v[i]))
		}
	}

	// ccache entry overhead
	return size + headerSize + 350 + int64(unsafe.Sizeof(*res))
}

// NewMemoryCache returns instance of memory cache limited to maxSize bytes
func NewMemoryCache(maxSize int64) *MemoryCache {
	return &MemoryCache{ccache.New[responseSizeProvider](ccache.Configure[responseSizeProvider]().MaxSize(maxSize).ItemsToPrune(50))}
}

// Set put copy of response to cache
func (c *MemoryCache) Set(_ context.Context, key string, res *response.Response) error {
	cachedResp, err := res.Copy()
	if err != nil {
		return err
	}

	monitoring.Report().Inc("cache_ratio;status:set")
	provider := responseSizeProvider{
		Response:   cachedResp,
		cachedSize: calculateResponseSize(cachedResp),
	}
	c.cache.Set(key, provider, time.Second*time.Duration(res.GetTTL()))
	return nil
}

// Get returns copy of cached response or ErrNotFound
func (c *MemoryCache) Get(_ context.Context, key string) (*response.Response, error) {
	item := c.cache.Get(key)
	if item == nil || item.Expired() {
		monitoring.Report().Inc("cache_ratio;status:miss")
		return nil, ErrNotFound
	}

	resCp, err := item.Value().Copy()
	if err != nil {
		monitoring.Report().Inc("cache_ratio;status:miss")
		return nil, ErrNotFound
	}

	monitoring.Log().Debug("MemoryCache/Get", zap.String("cache", "hit"), zap.String("key", key))
	monitoring.Report().Inc("cache_ratio;status:hit")
	resCp.SetCacheHit()
	return resCp, nil
}

// Delete remove given response from cache
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.cache.Delete(key)
	return nil
}
