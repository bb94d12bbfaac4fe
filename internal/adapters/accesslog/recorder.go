package accesslog

import (
	"context"

	"github.com/okian/fighterstats/pkg/metrics"
)

// Enqueuer accepts entries without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, e Entry) bool
}

// Recorder hands entries to a queue and drops them when it is full.
type Recorder struct {
	queue Enqueuer
}

// NewRecorder returns a recorder backed by q.
func NewRecorder(q Enqueuer) *Recorder {
	return &Recorder{queue: q}
}

// Record enqueues e. It reports false when the entry was dropped.
func (r *Recorder) Record(ctx context.Context, e Entry) bool { //nolint:gocritic // hugeParam: Entry is passed by value into the queue
	if r == nil || r.queue == nil {
		return false
	}
	// Request cancellation must not drop the entry of the request that was cancelled.
	if r.queue.Enqueue(context.WithoutCancel(ctx), e) {
		return true
	}
	metrics.RecordAccessLogDropped()
	return false
}
