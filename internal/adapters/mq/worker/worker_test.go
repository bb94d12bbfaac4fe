package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/fighterstats/internal/adapters/mq/queue"
	"github.com/okian/fighterstats/internal/adapters/mq/worker"
	logging "github.com/okian/fighterstats/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockSink struct {
	mu      sync.Mutex
	batches [][]queue.Entry
	err     error
}

func (s *mockSink) Write(_ context.Context, entries []queue.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]queue.Entry, len(entries))
	copy(cp, entries)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *mockSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func entry(id string) queue.Entry {
	return queue.Entry{RequestID: id, Method: "GET", URI: "/", Status: 200}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		sink := &mockSink{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("When a full batch arrives it is written at once", func() {
			w := worker.NewInMemoryWorker(q, sink,
				worker.WithBatchSize(3),
				worker.WithFlushInterval(time.Hour),
			)
			go w.Run(ctx)

			for i := 0; i < 3; i++ {
				q.Enqueue(ctx, entry(fmt.Sprintf("r%d", i)))
			}

			convey.So(eventually(func() bool { return sink.count() == 3 }), convey.ShouldBeTrue)
			convey.So(sink.batchCount(), convey.ShouldEqual, 1)
		})

		convey.Convey("When a partial batch waits it is flushed on the interval", func() {
			w := worker.NewInMemoryWorker(q, sink,
				worker.WithBatchSize(50),
				worker.WithFlushInterval(10*time.Millisecond),
				worker.WithName("test-worker"),
			)
			go w.Run(ctx)

			q.Enqueue(ctx, entry("r1"))
			convey.So(eventually(func() bool { return sink.count() == 1 }), convey.ShouldBeTrue)
		})

		convey.Convey("When the queue closes the held entries are flushed", func() {
			w := worker.NewInMemoryWorker(q, sink,
				worker.WithBatchSize(50),
				worker.WithFlushInterval(time.Hour),
			)
			go w.Run(ctx)

			q.Enqueue(ctx, entry("r1"))
			q.Enqueue(ctx, entry("r2"))
			convey.So(q.Close(), convey.ShouldBeNil)

			select {
			case <-w.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("worker did not stop after queue close")
			}
			convey.So(sink.count(), convey.ShouldEqual, 2)
		})

		convey.Convey("When the sink fails the worker keeps running", func() {
			sink.err = errors.New("disk full")
			w := worker.NewInMemoryWorker(q, sink,
				worker.WithBatchSize(1),
				worker.WithLogger(logging.Nop()),
			)
			go w.Run(ctx)

			q.Enqueue(ctx, entry("r1"))
			time.Sleep(20 * time.Millisecond)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(sink.count(), convey.ShouldEqual, 0)
		})

		convey.Convey("When shutting down twice", func() {
			w := worker.NewInMemoryWorker(q, sink)
			go w.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		sink := &mockSink{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("A non-positive size falls back to one worker", func() {
			convey.So(worker.NewPool(0, q, sink).Size(), convey.ShouldEqual, 1)
		})

		convey.Convey("Shutdown drains every queued entry", func() {
			pool := worker.NewPool(3, q, sink, worker.WithBatchSize(7), worker.WithFlushInterval(time.Hour))
			pool.Start(ctx)

			var wg sync.WaitGroup
			for p := 0; p < 5; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						for !q.Enqueue(ctx, entry(fmt.Sprintf("r%d-%d", p, i))) {
							time.Sleep(time.Millisecond)
						}
					}
				}(p)
			}
			wg.Wait()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(sink.count(), convey.ShouldEqual, 500)
		})
	})
}
