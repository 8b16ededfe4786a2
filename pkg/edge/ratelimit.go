package edge

import (
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/time/rate"

	"github.com/imgedge/imgedge/pkg/config"
)

// idleLimiterTTL is time after which limiter of inactive client is forgotten
const idleLimiterTTL = 10 * time.Minute

// clientLimiter keeps token bucket per client
type clientLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *ccache.Cache[*rate.Limiter]
}

// newClientLimiter returns nil when rate limiting is disabled
func newClientLimiter(cfg config.RateLimitCfg) *clientLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &clientLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		limiters: ccache.New(ccache.Configure[*rate.Limiter]().MaxSize(100000).ItemsToPrune(500)),
	}
}

// Allow check if client can make request now
func (l *clientLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}

	item, err := l.limiters.Fetch(client, idleLimiterTTL, func() (*rate.Limiter, error) {
		return rate.NewLimiter(l.limit, l.burst), nil
	})
	if err != nil {
		return true
	}

	item.Extend(idleLimiterTTL)
	return item.Value().Allow()
}
