// Package memory provides the in-process job queue feeding the execution worker.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan indexing.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan indexing.QueueItem, capacity),
	}
}

// Enqueue pushes a job without waiting. A full queue yields indexing.ErrQueueFull.
func (q *Queue) Enqueue(ctx context.Context, job indexing.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	// The read lock keeps Close from closing the channel mid-send.
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return errors.New("queue closed")
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return indexing.ErrQueueFull
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (indexing.QueueItem, error) {
	select {
	case <-ctx.Done():
		return indexing.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return indexing.QueueItem{}, errors.New("queue closed")
		}
		return job, nil
	}
}

// Len reports how many items are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
