// Package worker drains queued access log entries into a sink.
package worker

import (
	"time"

	"github.com/okian/fighterstats/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithBatchSize caps the number of entries per sink write.
func WithBatchSize(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long an entry may wait in a partial batch.
func WithFlushInterval(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}
