package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/fighterstats/internal/domain/ratelimit"
	"github.com/okian/fighterstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestParseQuota(t *testing.T) {
	Convey("ParseQuota", t, func() {
		cases := map[string]ratelimit.Quota{
			"10/minute":      {Requests: 10, Window: time.Minute},
			"5 per minute":   {Requests: 5, Window: time.Minute},
			"3/Second":       {Requests: 3, Window: time.Second},
			"100/hour":       {Requests: 100, Window: time.Hour},
			"1000/day":       {Requests: 1000, Window: 24 * time.Hour},
			"10/2 minutes":   {Requests: 10, Window: 2 * time.Minute},
			"7/30s":          {Requests: 7, Window: 30 * time.Second},
			" 4 / min ":      {Requests: 4, Window: time.Minute},
			"2 per 5 second": {Requests: 2, Window: 5 * time.Second},
		}
		for in, want := range cases {
			got, err := ratelimit.ParseQuota(in)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, want)
		}

		Convey("Malformed quotas are rejected", func() {
			for _, in := range []string{"", "ten/minute", "0/minute", "-1/minute", "5/fortnight", "5", "5/-1s"} {
				_, err := ratelimit.ParseQuota(in)
				So(errors.Is(err, ratelimit.ErrInvalidQuota), ShouldBeTrue)
			}
		})

		Convey("ParseQuotas names the failing endpoint", func() {
			_, err := ratelimit.ParseQuotas(map[string]string{"search": "lots"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "search")
		})
	})
}

func TestNew(t *testing.T) {
	Convey("New selects the strategy", t, func() {
		q := map[string]ratelimit.Quota{"root": {Requests: 1, Window: time.Minute}}

		l, err := ratelimit.New("", q)
		So(err, ShouldBeNil)
		So(l, ShouldHaveSameTypeAs, &ratelimit.FixedWindow{})

		l, err = ratelimit.New(ratelimit.StrategyTokenBucket, q)
		So(err, ShouldBeNil)
		So(l, ShouldHaveSameTypeAs, &ratelimit.TokenBucket{})

		_, err = ratelimit.New("leaky", q)
		So(errors.Is(err, ratelimit.ErrUnknownStrategy), ShouldBeTrue)

		_, err = ratelimit.New(ratelimit.StrategyFixedWindow, map[string]ratelimit.Quota{"x": {}})
		So(errors.Is(err, ratelimit.ErrInvalidQuota), ShouldBeTrue)
	})
}

func TestFixedWindow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fixed window limiter", t, func() {
		clock := newFakeClock()
		l := ratelimit.NewFixedWindow(map[string]ratelimit.Quota{
			"search":   {Requests: 5, Window: time.Minute},
			"striking": {Requests: 3, Window: time.Minute},
		}, ratelimit.WithClock(clock.Now))

		Convey("The first N requests pass and request N+1 is rejected", func() {
			for i := 1; i <= 5; i++ {
				d := l.Allow(ctx, "1.2.3.4", "search")
				So(d.Allowed, ShouldBeTrue)
				So(d.Limit, ShouldEqual, 5)
				So(d.Remaining, ShouldEqual, 5-i)
			}
			d := l.Allow(ctx, "1.2.3.4", "search")
			So(d.Allowed, ShouldBeFalse)
			So(d.Remaining, ShouldEqual, 0)
			So(d.RetryAfter, ShouldEqual, time.Minute)
		})

		Convey("Endpoints do not share budgets", func() {
			for i := 0; i < 3; i++ {
				So(l.Allow(ctx, "c", "striking").Allowed, ShouldBeTrue)
			}
			So(l.Allow(ctx, "c", "striking").Allowed, ShouldBeFalse)
			So(l.Allow(ctx, "c", "search").Allowed, ShouldBeTrue)
		})

		Convey("Clients do not share budgets", func() {
			for i := 0; i < 3; i++ {
				l.Allow(ctx, "a", "striking")
			}
			So(l.Allow(ctx, "a", "striking").Allowed, ShouldBeFalse)
			So(l.Allow(ctx, "b", "striking").Allowed, ShouldBeTrue)
		})

		Convey("The budget is restored once the window ends", func() {
			for i := 0; i < 3; i++ {
				l.Allow(ctx, "a", "striking")
			}
			clock.Advance(30 * time.Second)
			d := l.Allow(ctx, "a", "striking")
			So(d.Allowed, ShouldBeFalse)
			So(d.RetryAfter, ShouldEqual, 30*time.Second)

			clock.Advance(30 * time.Second)
			d = l.Allow(ctx, "a", "striking")
			So(d.Allowed, ShouldBeTrue)
			So(d.Remaining, ShouldEqual, 2)
		})

		Convey("Endpoints without a quota are unlimited", func() {
			for i := 0; i < 100; i++ {
				d := l.Allow(ctx, "a", "healthz")
				So(d.Allowed, ShouldBeTrue)
				So(d.Limited(), ShouldBeFalse)
			}
			So(l.Len(), ShouldEqual, 0)
		})

		Convey("Sweep evicts only expired buckets", func() {
			l.Allow(ctx, "a", "search")
			clock.Advance(45 * time.Second)
			l.Allow(ctx, "b", "search")
			So(l.Len(), ShouldEqual, 2)

			clock.Advance(15 * time.Second)
			So(l.Sweep(clock.Now()), ShouldEqual, 1)
			So(l.Len(), ShouldEqual, 1)
		})
	})

	Convey("Concurrent requests never exceed the quota", t, func() {
		l := ratelimit.NewFixedWindow(map[string]ratelimit.Quota{
			"fighters": {Requests: 5, Window: time.Hour},
		})

		var allowed atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow(ctx, "10.0.0.1", "fighters").Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		So(allowed.Load(), ShouldEqual, 5)
	})
}

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()

	Convey("Given a token bucket limiter", t, func() {
		clock := newFakeClock()
		l := ratelimit.NewTokenBucket(map[string]ratelimit.Quota{
			"grappling": {Requests: 3, Window: time.Minute},
		}, ratelimit.WithClock(clock.Now))

		Convey("A full burst passes and the next request waits for one token", func() {
			for i := 1; i <= 3; i++ {
				d := l.Allow(ctx, "a", "grappling")
				So(d.Allowed, ShouldBeTrue)
				So(d.Remaining, ShouldEqual, 3-i)
			}
			d := l.Allow(ctx, "a", "grappling")
			So(d.Allowed, ShouldBeFalse)
			So(d.RetryAfter, ShouldEqual, 20*time.Second)

			clock.Advance(20 * time.Second)
			So(l.Allow(ctx, "a", "grappling").Allowed, ShouldBeTrue)
			So(l.Allow(ctx, "a", "grappling").Allowed, ShouldBeFalse)
		})

		Convey("Idle buckets are swept after a full window", func() {
			l.Allow(ctx, "a", "grappling")
			clock.Advance(59 * time.Second)
			So(l.Sweep(clock.Now()), ShouldEqual, 0)
			clock.Advance(time.Second)
			So(l.Sweep(clock.Now()), ShouldEqual, 1)
			So(l.Len(), ShouldEqual, 0)
		})
	})

	Convey("Concurrent requests never exceed the burst", t, func() {
		l := ratelimit.NewTokenBucket(map[string]ratelimit.Quota{
			"stats": {Requests: 5, Window: time.Hour},
		})

		var allowed atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow(ctx, "10.0.0.1", "stats").Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		So(allowed.Load(), ShouldEqual, 5)
	})
}

func TestRun(t *testing.T) {
	Convey("Run stops when the context is cancelled", t, func() {
		l := ratelimit.NewFixedWindow(nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			ratelimit.Run(ctx, l, time.Millisecond)
			close(done)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("janitor did not stop")
		}
	})
}
