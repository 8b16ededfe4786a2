// Package throttler bounds number of concurrent invocations of a backend.
package throttler

import (
	"context"
	"time"
)

// defaultBacklogTimeout is time for which request can wait in backlog for token
const defaultBacklogTimeout = time.Second * 60

// Throttler limits number of concurrent calls
type Throttler interface {
	// Take returns true when call can be performed, it has to be followed by Release
	Take(ctx context.Context) bool
	// Release returns token
	Release()
}

// NopThrottler never limits calls
type NopThrottler struct{}

// NewNopThrottler create throttler which always allows call
func NewNopThrottler() *NopThrottler {
	return &NopThrottler{}
}

// Take always returns true
func (*NopThrottler) Take(_ context.Context) bool {
	return true
}

// Release do nothing
func (*NopThrottler) Release() {}

// New returns bucket throttler for positive limit, otherwise nop throttler
// backlog of the same size as limit waits up to timeout for token
func New(limit int, timeout time.Duration) Throttler {
	if limit <= 0 {
		return NewNopThrottler()
	}

	if timeout <= 0 {
		timeout = defaultBacklogTimeout
	}

	return NewBucketThrottlerBacklog(limit, limit, timeout)
}
