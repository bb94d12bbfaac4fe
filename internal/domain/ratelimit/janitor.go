package ratelimit

import (
	"context"
	"time"

	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

// DefaultSweepInterval is how often Run evicts expired buckets.
const DefaultSweepInterval = time.Minute

// Run sweeps l every interval until ctx is cancelled.
func Run(ctx context.Context, l Limiter, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	log := logger.Named("ratelimit")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := l.Sweep(now)
			live := l.Len()
			metrics.UpdateRateLimitBuckets(live)
			if removed > 0 {
				log.Debug(ctx, "swept rate limit buckets",
					logger.Int("removed", removed),
					logger.Int("live", live))
			}
		}
	}
}
