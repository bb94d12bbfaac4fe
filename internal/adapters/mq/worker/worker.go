package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/fighterstats/internal/adapters/mq/queue"
	"github.com/okian/fighterstats/pkg/logger"
	"github.com/okian/fighterstats/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	finalFlushTimeout    = 5 * time.Second
	poolShutdownTimeout  = 30 * time.Second
)

// Entry is what workers read off the queue.
type Entry = queue.Entry

// Sink persists batches of entries.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Entry
}

// Worker drains entries into a sink.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after flushing what it already holds.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker batches entries and writes them to a Sink.
type InMemoryWorker struct {
	queue Queue
	sink  Sink
	name  string

	batchSize     int
	flushInterval time.Duration

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:         q,
		sink:          sink,
		name:          "worker",
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		logger:        logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batch := make([]Entry, 0, w.batchSize)
	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		w.write(fctx, batch)
		batch = batch[:0]
	}
	// Whatever is held when the loop exits is still written.
	defer func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		flush(fctx)
	}()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	entries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-ticker.C:
			flush(ctx)
		case e, ok := <-entries:
			if !ok {
				return
			}
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush(ctx)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) write(ctx context.Context, batch []Entry) {
	start := time.Now()
	err := w.sink.Write(ctx, batch)
	metrics.RecordAccessLogSinkLatency(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		metrics.RecordAccessLogSinkError()
		metrics.RecordErrorByComponent("worker", "sink_error")
		metrics.RecordErrorByType("sink_error", "medium")
		w.logger.Error(ctx, "access log write failed",
			logger.Int("entries", len(batch)),
			logger.Error(err),
		)
		return
	}
	metrics.RecordAccessLogWritten(len(batch))
}

// Pool manages multiple workers sharing one queue and sink.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, sink, wopts...)
	}

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}

	return nil
}
