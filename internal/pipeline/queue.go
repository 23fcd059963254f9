package pipeline

import (
	"context"
	"sync"

	"enrollment-sync/pkg/logging"
)

// WorkerPool runs queued item ids on a fixed number of goroutines fed by a
// bounded channel.
type WorkerPool struct {
	workers int
	jobs    chan string
	handle  func(ctx context.Context, id string)

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorkerPool creates a stopped pool.
func NewWorkerPool(workers, buffer int, handle func(ctx context.Context, id string)) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 100
	}
	return &WorkerPool{
		workers: workers,
		jobs:    make(chan string, buffer),
		handle:  handle,
	}
}

// Start launches the workers. Work runs on ctx's values without its
// cancellation, so a shutdown signal never aborts a started run; Stop
// drains instead. Calling Start twice is a no-op.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	logging.FromContext(ctx).Info().Int("workers", p.workers).Int("buffer", cap(p.jobs)).Msg("Queue workers started")
}

func (p *WorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for id := range p.jobs {
		itemCtx := logging.WithField(logging.WithQueueItem(ctx, id), "worker", workerID)
		p.handle(itemCtx, id)
	}
}

// Submit enqueues id without blocking. It reports false when the pool is
// not running or the buffer is full.
func (p *WorkerPool) Submit(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return false
	}
	select {
	case p.jobs <- id:
		return true
	default:
		return false
	}
}

// Stop stops accepting work, lets the workers drain what is buffered and
// waits for them to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}
	p.wg.Wait()
	p.cancel()
}
