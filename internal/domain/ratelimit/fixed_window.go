package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	end   time.Time
	count int
}

// FixedWindow counts requests in windows that open on a bucket's first
// request and last exactly one quota window.
type FixedWindow struct {
	mu      sync.Mutex
	quotas  map[string]Quota
	buckets map[bucketKey]*window
	now     func() time.Time
}

// NewFixedWindow returns a fixed-window limiter.
func NewFixedWindow(quotas map[string]Quota, opts ...Option) *FixedWindow {
	o := newOptions(opts...)
	return &FixedWindow{
		quotas:  copyQuotas(quotas),
		buckets: make(map[bucketKey]*window),
		now:     o.now,
	}
}

// Allow implements Limiter.
func (l *FixedWindow) Allow(_ context.Context, client, endpoint string) Decision {
	q, ok := l.quotas[endpoint]
	if !ok {
		return unlimited()
	}

	now := l.now()
	key := bucketKey{client: client, endpoint: endpoint}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.buckets[key]
	if w == nil || !now.Before(w.end) {
		w = &window{end: now.Add(q.Window)}
		l.buckets[key] = w
	}

	if w.count < q.Requests {
		w.count++
		return Decision{
			Allowed:   true,
			Limit:     q.Requests,
			Remaining: q.Requests - w.count,
			ResetAt:   w.end,
		}
	}

	return Decision{
		Allowed:    false,
		Limit:      q.Requests,
		Remaining:  0,
		ResetAt:    w.end,
		RetryAfter: w.end.Sub(now),
	}
}

// Quota implements Limiter.
func (l *FixedWindow) Quota(endpoint string) (Quota, bool) {
	q, ok := l.quotas[endpoint]
	return q, ok
}

// Sweep implements Limiter.
func (l *FixedWindow) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.buckets {
		if !now.Before(w.end) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len implements Limiter.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
