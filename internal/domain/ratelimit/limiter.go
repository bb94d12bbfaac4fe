// Package ratelimit enforces per-client, per-endpoint request quotas.
//
// Buckets are keyed by (client identity, endpoint key), created lazily on the
// first request and removed by Sweep once their window has passed. Every
// check-and-increment happens under the limiter mutex, so two concurrent
// requests can never both take the last slot of a bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Strategy names the counting algorithm.
type Strategy string

// Supported strategies.
const (
	StrategyFixedWindow Strategy = "fixed_window"
	StrategyTokenBucket Strategy = "token_bucket"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int // 0 means the endpoint has no quota
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // set when Allowed is false
}

// Limited reports whether the endpoint carried a quota.
func (d Decision) Limited() bool { return d.Limit > 0 }

// Limiter decides whether a request may proceed.
type Limiter interface {
	// Allow counts one request from client against endpoint's quota.
	Allow(ctx context.Context, client, endpoint string) Decision
	// Quota returns the quota configured for endpoint.
	Quota(endpoint string) (Quota, bool)
	// Sweep drops buckets that are expired at now and returns how many were removed.
	Sweep(now time.Time) int
	// Len returns the number of live buckets.
	Len() int
}

type bucketKey struct {
	client   string
	endpoint string
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

func newOptions(opts ...Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds a limiter for strategy.
func New(strategy Strategy, quotas map[string]Quota, opts ...Option) (Limiter, error) {
	for endpoint, q := range quotas {
		if q.Requests < 1 || q.Window <= 0 {
			return nil, fmt.Errorf("%w: endpoint %s: %s", ErrInvalidQuota, endpoint, q)
		}
	}
	switch strategy {
	case "", StrategyFixedWindow:
		return NewFixedWindow(quotas, opts...), nil
	case StrategyTokenBucket:
		return NewTokenBucket(quotas, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func copyQuotas(in map[string]Quota) map[string]Quota {
	out := make(map[string]Quota, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func unlimited() Decision { return Decision{Allowed: true} }
