// Package worker drains the job queue and hands each item to an Executor.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

// Executor runs one queued job to completion.
type Executor interface {
	Execute(ctx context.Context, item indexing.QueueItem) error
}

// Worker consumes queue items one at a time.
type Worker struct {
	queue    indexing.Queue
	executor Executor
	clock    indexing.Clock
	logger   *zap.Logger
}

// New constructs a Worker.
func New(queue indexing.Queue, executor Executor, clock indexing.Clock, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		executor: executor,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			// Avoid spinning on a queue that keeps failing (e.g. closed).
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item indexing.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID))
	if w.clock != nil && !item.Enqueued.IsZero() {
		logger.Debug("dequeued job", zap.Duration("queue_wait", w.clock.Now().Sub(item.Enqueued)))
	} else {
		logger.Debug("dequeued job")
	}
	if w.executor == nil {
		logger.Error("no executor configured")
		return
	}
	if err := w.executor.Execute(ctx, item); err != nil {
		logger.Error("job execution failed", zap.Error(err))
	}
}
