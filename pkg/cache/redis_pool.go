package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	goRedis "github.com/go-redis/redis/v8"
)

// redisClientPool manages shared Redis client connections
type redisClientPool struct {
	clients map[string]goRedis.UniversalClient
	mu      sync.Mutex
}

var pool = &redisClientPool{clients: make(map[string]goRedis.UniversalClient)}

// getRedisClient returns a shared Redis client for the given configuration
func getRedisClient(addresses []string, clientConfig map[string]string, cluster bool) goRedis.UniversalClient {
	configHash := hashConfig(addresses, cluster)

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if client, exists := pool.clients[configHash]; exists {
		return client
	}

	var client goRedis.UniversalClient
	switch {
	case cluster:
		client = goRedis.NewClusterClient(&goRedis.ClusterOptions{
			Addrs: addresses,
		})
	case len(addresses) > 1:
		addrs := make(map[string]string, len(addresses))
		for i, addr := range addresses {
			addrs[fmt.Sprintf("shard%d", i)] = addr
		}
		client = goRedis.NewRing(&goRedis.RingOptions{
			Addrs: addrs,
		})
	default:
		client = goRedis.NewClient(&goRedis.Options{
			Addr: addresses[0],
		})
	}

	for key, value := range clientConfig {
		client.ConfigSet(context.Background(), key, value)
	}

	pool.clients[configHash] = client
	return client
}

// hashConfig creates a unique hash for a Redis configuration
func hashConfig(addresses []string, cluster bool) string {
	h := sha256.New()
	for _, addr := range addresses {
		h.Write([]byte(addr))
		h.Write([]byte{0})
	}
	if cluster {
		h.Write([]byte("cluster"))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
