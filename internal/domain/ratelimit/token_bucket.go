package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type tokenEntry struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// TokenBucket refills each bucket continuously at Requests per Window with a
// burst of Requests, so a fresh client may spend its whole quota at once.
type TokenBucket struct {
	mu      sync.Mutex
	quotas  map[string]Quota
	buckets map[bucketKey]*tokenEntry
	now     func() time.Time
}

// NewTokenBucket returns a token-bucket limiter.
func NewTokenBucket(quotas map[string]Quota, opts ...Option) *TokenBucket {
	o := newOptions(opts...)
	return &TokenBucket{
		quotas:  copyQuotas(quotas),
		buckets: make(map[bucketKey]*tokenEntry),
		now:     o.now,
	}
}

// Allow implements Limiter.
func (l *TokenBucket) Allow(_ context.Context, client, endpoint string) Decision {
	q, ok := l.quotas[endpoint]
	if !ok {
		return unlimited()
	}

	now := l.now()
	key := bucketKey{client: client, endpoint: endpoint}
	every := rate.Every(q.Window / time.Duration(q.Requests))

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.buckets[key]
	if e == nil {
		e = &tokenEntry{limiter: rate.NewLimiter(every, q.Requests), window: q.Window}
		l.buckets[key] = e
	}
	e.lastSeen = now

	allowed := e.limiter.AllowN(now, 1)
	tokens := e.limiter.TokensAt(now)
	perSecond := float64(every)

	d := Decision{
		Allowed:   allowed,
		Limit:     q.Requests,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(secondsToDuration((float64(q.Requests) - tokens) / perSecond)),
	}
	if !allowed {
		d.RetryAfter = secondsToDuration((1 - tokens) / perSecond)
	}
	return d
}

// Quota implements Limiter.
func (l *TokenBucket) Quota(endpoint string) (Quota, bool) {
	q, ok := l.quotas[endpoint]
	return q, ok
}

// Sweep implements Limiter. A bucket idle for a whole window has refilled
// completely and is indistinguishable from a new one.
func (l *TokenBucket) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.buckets {
		if now.Sub(e.lastSeen) >= e.window {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len implements Limiter.
func (l *TokenBucket) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(s * float64(time.Second)))
}
