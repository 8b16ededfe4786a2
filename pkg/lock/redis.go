package lock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	goRedis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

const keyPrefix = "imgedge-lock:"

func parseAddress(addrs []string) map[string]string {
	mp := make(map[string]string, len(addrs))

	for _, addr := range addrs {
		parts := strings.Split(addr, ":")
		mp[parts[0]] = addr
	}

	return mp
}

type publisher interface {
	Subscribe(ctx context.Context, channels ...string) *goRedis.PubSub
	Publish(ctx context.Context, channel string, message interface{}) *goRedis.IntCmd
}

type redisLockEntry struct {
	lock   *redislock.Lock
	pubsub *goRedis.PubSub
}

// RedisLock is lock shared between instances using redis
// Waiters in other instances are notified by pubsub and fetch object on their own
type RedisLock struct {
	client      *redislock.Client
	memoryLock  *MemoryLock
	locks       map[string]redisLockEntry
	lock        sync.Mutex
	LockTimeout int // seconds
	redisClient publisher
}

// NewRedisLock create connection to redis and update it config from clientConfig map
func NewRedisLock(redisAddress []string, clientConfig map[string]string) *RedisLock {
	ring := goRedis.NewRing(&goRedis.RingOptions{
		Addrs: parseAddress(redisAddress),
	})

	for key, value := range clientConfig {
		ring.ConfigSet(context.Background(), key, value)
	}

	return &RedisLock{
		client:      redislock.New(ring),
		memoryLock:  NewMemoryLock(),
		locks:       make(map[string]redisLockEntry),
		LockTimeout: 60,
		redisClient: ring,
	}
}

// Lock obtain lock in redis, when it is held by other instance caller waits for its notification
func (m *RedisLock) Lock(ctx context.Context, key string) (LockResult, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.locks[key]; ok {
		return m.memoryLock.Lock(ctx, key)
	}

	redisKey := keyPrefix + key
	lock, err := m.client.Obtain(ctx, redisKey, time.Duration(m.LockTimeout)*time.Second, nil)
	if err == redislock.ErrNotObtained {
		result := m.memoryLock.forceLockAndAddWatch(key)
		pubsub := m.redisClient.Subscribe(ctx, redisKey)
		m.locks[key] = redisLockEntry{pubsub: pubsub}
		go m.waitForHolder(ctx, key, pubsub, result)
		return result, false
	}

	if err != nil {
		monitoring.Log().Error("RedisLock obtain error", zap.String("key", key), zap.Error(err))
		return LockResult{Error: err}, false
	}

	m.locks[key] = redisLockEntry{lock: lock}
	return m.memoryLock.Lock(ctx, key)
}

func (m *RedisLock) waitForHolder(ctx context.Context, key string, pubsub *goRedis.PubSub, result LockResult) {
	timer := time.NewTimer(time.Duration(m.LockTimeout) * time.Second)
	defer timer.Stop()

	select {
	case <-pubsub.Channel():
	case <-timer.C:
	case <-result.Cancel:
	case <-ctx.Done():
	}

	m.lock.Lock()
	if entry, ok := m.locks[key]; ok && entry.pubsub == pubsub {
		delete(m.locks, key)
	}
	m.lock.Unlock()

	if err := pubsub.Close(); err != nil {
		monitoring.Log().Error("RedisLock pubsub close error", zap.String("key", key), zap.Error(err))
	}

	m.memoryLock.Release(ctx, key)
}

func (m *RedisLock) release(ctx context.Context, key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	entry, ok := m.locks[key]
	if !ok || entry.lock == nil {
		return
	}

	delete(m.locks, key)
	if err := entry.lock.Release(ctx); err != nil {
		monitoring.Log().Error("RedisLock release error", zap.String("key", key), zap.Error(err))
	}
	m.redisClient.Publish(ctx, keyPrefix+key, 1)
}

// NotifyAndRelease release redis lock, notify other instances and share response with local waiters
func (m *RedisLock) NotifyAndRelease(ctx context.Context, key string, res *response.SharedResponse) {
	m.release(ctx, key)
	m.memoryLock.NotifyAndRelease(ctx, key, res)
}

// Release remove lock without sharing response
func (m *RedisLock) Release(ctx context.Context, key string) {
	m.release(ctx, key)
	m.memoryLock.Release(ctx, key)
}
