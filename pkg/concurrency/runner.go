// Package concurrency is a generic bounded-parallel task executor used
// by every phase that fans work out over tables or sub-steps. Most
// phases want per-task error isolation: one table's constraint failure
// must not abort the 19 others running alongside it. Run provides that;
// RunFailFast is the cancel-on-first-error variant for the few call
// sites that want it (the boot-time connectivity probes).
package concurrency

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Outcome pairs one task's identity with whatever error it produced, nil on
// success.
type Outcome struct {
	Index int
	Err   error
}

// Run executes fn once per index in [0, n) with at most limit running
// concurrently, using golang.org/x/sync/semaphore rather than an unbounded
// goroutine per task. Every task runs to completion regardless of its
// siblings' outcomes; the returned slice is indexed the same as the input
// and always has length n.
func Run(ctx context.Context, limit int, n int, fn func(ctx context.Context, i int) error) []Outcome {
	outcomes := make([]Outcome, n)
	if n == 0 {
		return outcomes
	}
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{Index: i, Err: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = Outcome{Index: i, Err: fn(ctx, i)}
		}()
	}
	wg.Wait()
	return outcomes
}

// RunFailFast executes fn once per index with at most limit running
// concurrently via golang.org/x/sync/errgroup: the first error cancels
// the group context passed to every task, and the call returns that
// error once all started tasks have returned. Used only
// where one failure truly invalidates the rest of the batch (the
// boot-time connectivity probes).
func RunFailFast(ctx context.Context, limit int, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
