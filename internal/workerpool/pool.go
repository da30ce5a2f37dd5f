// Package workerpool provides a bounded pool for fanning out language server
// requests. The pool is an explicit resource: the runtime constructs one,
// passes it to collaborators, and shuts it down on close; tests build their
// own instances.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// DefaultWidth is the pool width used when the configuration does not set one.
const DefaultWidth = 10

// Task is a handle to one submitted unit of work.
type Task struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task finishes or ctx is canceled, and returns the
// task's error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Pool runs submitted functions with bounded parallelism on a weighted
// semaphore. Submit blocks while the pool is saturated rather than queueing
// unboundedly.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New creates a pool running at most width tasks concurrently.
func New(width int) *Pool {
	if width < 1 {
		width = DefaultWidth
	}
	return &Pool{sem: semaphore.NewWeighted(int64(width))}
}

// Submit schedules fn and returns its Task. It blocks while all slots are
// busy; a canceled ctx abandons the wait. After Shutdown every submission is
// rejected with a typed error.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) (*Task, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, lspDomain.NewError(lspDomain.KindUnsupported, "worker pool is shut down")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return nil, err
	}

	task := &Task{done: make(chan struct{})}
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer close(task.done)
		task.err = fn(ctx)
	}()
	return task, nil
}

// Run submits fn and waits for it inline, like a bounded errgroup of one.
func (p *Pool) Run(ctx context.Context, fn func(context.Context) error) error {
	task, err := p.Submit(ctx, fn)
	if err != nil {
		return err
	}
	return task.Wait(ctx)
}

// Shutdown stops accepting work and waits for in-flight tasks, honoring ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
