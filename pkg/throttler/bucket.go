package throttler

import (
	"context"
	"time"
)

// BucketThrottler is implementation of token-bucket algorithm
// Requests above limit wait in backlog until token is returned, backlog timeout passes or context is done
type BucketThrottler struct {
	tokens         chan struct{}
	backlogTokens  chan struct{}
	backlogTimeout time.Duration
}

// NewBucketThrottler create a new instance of BucketThrottler without backlog
func NewBucketThrottler(limit int) *BucketThrottler {
	return NewBucketThrottlerBacklog(limit, 0, defaultBacklogTimeout)
}

// NewBucketThrottlerBacklog create a new instance of BucketThrottler with backlog
func NewBucketThrottlerBacklog(limit int, backlog int, timeout time.Duration) *BucketThrottler {
	max := limit + backlog
	t := &BucketThrottler{
		tokens:         make(chan struct{}, limit),
		backlogTokens:  make(chan struct{}, max),
		backlogTimeout: timeout,
	}

	for i := 0; i < max; i++ {
		if i < limit {
			t.tokens <- struct{}{}
		}
		t.backlogTokens <- struct{}{}
	}

	return t
}

// Take retrieve a token from bucket
func (t *BucketThrottler) Take(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case <-t.tokens:
		return true
	default:
	}

	select {
	case btok := <-t.backlogTokens:
		defer func() {
			t.backlogTokens <- btok
		}()
	default:
		return false
	}

	timer := time.NewTimer(t.backlogTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	case <-t.tokens:
		return true
	}
}

// Release return token to bucket
func (t *BucketThrottler) Release() {
	t.tokens <- struct{}{}
}
