// Package media prepares files for sending: downloads, thumbnails and
// uploads run on a bounded worker pool and report back to a Sink.
package media

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
)

var ErrPoolStopped = errors.New("media pool stopped")

type job struct {
	name string
	run  func()
}

// Pool runs jobs on a fixed number of workers. Jobs queue up to the queue
// capacity, after which Submit blocks.
type Pool struct {
	logger  *slog.Logger
	workers int
	jobs    chan job

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(logger *slog.Logger, workers, queue int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		logger:  logger,
		workers: workers,
		jobs:    make(chan job, queue),
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	}()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.exec(j)
		}
	}
}

func (p *Pool) exec(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("media job panicked", "job", j.name, "panic", r)
		}
	}()
	j.run()
}

// Submit queues fn. It fails once the pool has been stopped or ctx is done.
func (p *Pool) Submit(ctx context.Context, name string, fn func()) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job{name: name, run: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}
