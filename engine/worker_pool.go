package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs shard scoring tasks on a fixed set of goroutines so that
// a busy search path does not spawn one goroutine per shard per query.
type WorkerPool struct {
	size  int
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup

	closed atomic.Bool
	// Held shared by Submit and exclusively by Close, so no send can race
	// with closing the task channel.
	submitMu sync.RWMutex
}

// NewWorkerPool starts size workers. A non-positive size uses GOMAXPROCS.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		size:  size,
		tasks: make(chan func(), size*2),
		quit:  make(chan struct{}),
	}

	p.wg.Add(size)
	for range size {
		go p.run()
	}
	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return p.size }

func (p *WorkerPool) run() {
	defer p.wg.Done()

	// The channel is closed by Close after quit, so ranging drains every
	// task that was accepted before shutdown.
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues task. It blocks while the queue is full and fails with
// ErrClosed after Close or with the context error on cancellation.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs the queued tasks and waits for the
// workers to exit. It is idempotent.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	// Unblock submitters waiting on a full queue before taking the lock.
	close(p.quit)

	p.submitMu.Lock()
	close(p.tasks)
	p.submitMu.Unlock()

	p.wg.Wait()
}
