package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool bounds how many jobs run at once. Jobs run on the caller's behalf and
// their results flow back through Submit; there is no queue beyond callers
// blocked in Submit.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most size jobs concurrently
func NewPool(size int) *Pool {
	if size < 1 {
		size = ForCPU(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the concurrency limit
func (p *Pool) Size() int {
	return p.size
}

// Submit blocks until a slot is free or ctx is done, then runs fn with ctx
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for worker: %w", err)
	}
	defer p.sem.Release(1)

	return fn(ctx)
}

// Go runs fn in the background once a slot is free. The returned channel
// receives fn's error, or the acquire error, and is then closed.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		done <- ErrPoolClosed
		close(done)
		return done
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer close(done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			done <- fmt.Errorf("waiting for worker: %w", err)
			return
		}
		defer p.sem.Release(1)

		done <- fn(ctx)
	}()

	return done
}

// Close rejects new jobs and waits for running and waiting ones, or for ctx
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
