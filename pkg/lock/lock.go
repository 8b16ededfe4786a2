// Package lock collapses concurrent compute invocations for the same key.
package lock

import (
	"context"

	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

// Lock is responsible for collapsing requests for same object
type Lock interface {
	// Lock try get a lock for given key
	Lock(ctx context.Context, key string) (observer LockResult, acquired bool)
	// Release remove lock for given key, waiting clients receive no response
	Release(ctx context.Context, key string)
	// NotifyAndRelease remove lock for given key and share response with all clients waiting for it
	// nil response tells waiters to fetch object on their own
	NotifyAndRelease(ctx context.Context, key string, res *response.SharedResponse)
}

// LockResult contains channels for client waiting for lock
type LockResult struct {
	ResponseChan chan *response.Response // channel on which you get response, closed without value when holder has nothing to share
	Cancel       chan bool               // channel for notify about cancel of waiting
	Error        error                   // error when creating lock
}

type lockData struct {
	notifyQueue []LockResult
}

// AddWatcher add next request waiting for lock to expire or return result
func (l *lockData) AddWatcher() LockResult {
	d := LockResult{}
	d.ResponseChan = make(chan *response.Response, 1)
	d.Cancel = make(chan bool, 1)
	l.notifyQueue = append(l.notifyQueue, d)
	return d
}

// NopLock will never collapse any request
type NopLock struct {
}

// NewNopLock create lock that do nothing
func NewNopLock() *NopLock {
	return &NopLock{}
}

// Lock always return that lock was acquired
func (l *NopLock) Lock(_ context.Context, _ string) (LockResult, bool) {
	return LockResult{}, true
}

// Release do nothing
func (l *NopLock) Release(_ context.Context, _ string) {
}

// NotifyAndRelease do nothing
func (l *NopLock) NotifyAndRelease(_ context.Context, _ string, _ *response.SharedResponse) {
}

// Create returns lock for configuration, nil when collapsing is disabled
func Create(cfg config.CollapseCfg) Lock {
	switch cfg.Type {
	case "memory":
		monitoring.Log().Info("Creating memory lock")
		return NewMemoryLock()
	case "redis":
		monitoring.Log().Info("Creating redis lock", zap.Strings("addr", cfg.Address), zap.Int("lockTimeout", cfg.Timeout))
		r := NewRedisLock(cfg.Address, cfg.ClientConfig)
		if cfg.Timeout > 0 {
			r.LockTimeout = cfg.Timeout
		}
		return r
	default:
		return nil
	}
}
