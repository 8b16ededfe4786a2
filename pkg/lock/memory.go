package lock

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

// MemoryLock is in memory lock for single instance
type MemoryLock struct {
	lock     sync.Mutex
	internal map[string]*lockData
}

// NewMemoryLock create a new empty instance of MemoryLock
func NewMemoryLock() *MemoryLock {
	m := &MemoryLock{}
	m.internal = make(map[string]*lockData)
	return m
}

// Lock create unique entry in memory map
func (m *MemoryLock) Lock(_ context.Context, key string) (LockResult, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, ok := m.internal[key]
	if ok {
		return data.AddWatcher(), false
	}

	m.internal[key] = &lockData{notifyQueue: make([]LockResult, 0, 5)}
	return LockResult{}, true
}

// forceLockAndAddWatch creates entry when missing and add watcher to it
func (m *MemoryLock) forceLockAndAddWatch(key string) LockResult {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, ok := m.internal[key]
	if !ok {
		data = &lockData{notifyQueue: make([]LockResult, 0, 5)}
		m.internal[key] = data
	}

	return data.AddWatcher()
}

func (m *MemoryLock) remove(key string) *lockData {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, ok := m.internal[key]
	if !ok {
		return nil
	}

	delete(m.internal, key)
	return data
}

// NotifyAndRelease sends view of response to all waiting goroutines
func (m *MemoryLock) NotifyAndRelease(_ context.Context, key string, res *response.SharedResponse) {
	data := m.remove(key)
	if data == nil {
		return
	}

	if len(data.notifyQueue) > 0 {
		monitoring.Log().Info("MemoryLock notify queue", zap.String("key", key), zap.Int("len", len(data.notifyQueue)))
	}

	for _, q := range data.notifyQueue {
		select {
		case <-q.Cancel:
		default:
			if res != nil {
				q.ResponseChan <- res.Acquire()
				res.Release()
			}
		}
		close(q.ResponseChan)
	}
}

// Release remove entry from memory map
func (m *MemoryLock) Release(_ context.Context, key string) {
	data := m.remove(key)
	if data == nil {
		return
	}

	for _, q := range data.notifyQueue {
		close(q.ResponseChan)
	}
}
