// Package pool runs independent indexed tasks on a bounded set of workers.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type Pool struct {
	workers       int
	queueCapacity int
}

// New returns a pool with the given worker count and task queue length.
// Non-positive values fall back to the hardware parallelism.
func New(workers, queueCapacity int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueCapacity <= 0 {
		queueCapacity = 4 * workers
	}
	return &Pool{workers: workers, queueCapacity: queueCapacity}
}

func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// ForEach runs task(i) for every i in [0, n). Tasks run to completion; when
// ctx is cancelled or a task fails no further indices are handed out.
// A nil pool runs the tasks serially on the calling goroutine.
func (p *Pool) ForEach(ctx context.Context, n int, task func(i int) error) error {
	return ForEachWithState(ctx, p, n, func() struct{} { return struct{}{} },
		func(_ struct{}, i int) error { return task(i) })
}

// ForEachWithState is like ForEach but gives every worker its own state,
// created once per worker by newState and reused across its tasks.
func ForEachWithState[S any](ctx context.Context, p *Pool, n int, newState func() S, task func(state S, i int) error) error {
	if n <= 0 {
		return nil
	}
	if p == nil || p.workers == 1 || n == 1 {
		state := newState()
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := task(state, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	workers := min(p.workers, n)
	g.SetLimit(workers + 1)

	queue := make(chan int, p.queueCapacity)
	g.Go(func() error {
		defer close(queue)
		for i := 0; i < n; i++ {
			select {
			case queue <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			state := newState()
			for i := range queue {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := task(state, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
