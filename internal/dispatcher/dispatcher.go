// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   indexing.Queue
	mu      sync.Mutex
	workers []*worker.Worker
}

// New creates a Dispatcher over queue. Workers are attached with Register
// because they usually depend on something that in turn enqueues through
// the dispatcher.
func New(queue indexing.Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// Register adds workers. It must be called before Run.
func (d *Dispatcher) Register(workers ...*worker.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers = append(d.workers, workers...)
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	workers := append([]*worker.Worker(nil), d.workers...)
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item indexing.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
