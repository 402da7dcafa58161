package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Func processes one item.
type Func[T, R any] func(ctx context.Context, item T) R

// Batch runs a Func over slices of items.
type Batch[T, R any] struct {
	fn      Func[T, R]
	workers int

	// Metrics
	runs      atomic.Uint64
	completed atomic.Uint64
	duration  atomic.Uint64
}

// Result holds the outcome of one Run.
type Result[R any] struct {
	// Results is in input order. Items not reached before cancellation
	// hold the zero value.
	Results []R

	// Completed counts the items processed.
	Completed int

	Duration time.Duration
}

// Stats summarizes every Run of a Batch.
type Stats struct {
	Workers   int
	Runs      uint64
	Completed uint64
	AvgItem   time.Duration
}

// NewBatch creates a batch runner. If workers <= 0, it defaults to
// runtime.NumCPU().
func NewBatch[T, R any](fn Func[T, R], workers int) *Batch[T, R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Batch[T, R]{fn: fn, workers: workers}
}

// Run processes items. It stops handing out work once ctx is canceled.
func (b *Batch[T, R]) Run(ctx context.Context, items []T) *Result[R] {
	start := time.Now()
	var res *Result[R]
	// Small batches are not worth the goroutines.
	if len(items) <= 2 || b.workers == 1 {
		res = b.runSequential(ctx, items)
	} else {
		res = b.runParallel(ctx, items)
	}
	res.Duration = time.Since(start)

	b.runs.Add(1)
	b.completed.Add(uint64(res.Completed)) //nolint:gosec // non-negative
	b.duration.Add(uint64(res.Duration))   //nolint:gosec // non-negative
	return res
}

func (b *Batch[T, R]) runSequential(ctx context.Context, items []T) *Result[R] {
	results := make([]R, len(items))
	completed := 0
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		results[i] = b.fn(ctx, item)
		completed++
	}
	return &Result[R]{Results: results, Completed: completed}
}

func (b *Batch[T, R]) runParallel(ctx context.Context, items []T) *Result[R] {
	workers := b.workers
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))
	jobs := make(chan int, workers*2)
	var completed atomic.Int64

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[i] = b.fn(ctx, items[i])
				completed.Add(1)
			}
		}()
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return &Result[R]{Results: results, Completed: int(completed.Load())}
}

// Stats returns totals over every Run so far.
func (b *Batch[T, R]) Stats() Stats {
	s := Stats{
		Workers:   b.workers,
		Runs:      b.runs.Load(),
		Completed: b.completed.Load(),
	}
	if s.Completed > 0 {
		s.AvgItem = time.Duration(b.duration.Load() / s.Completed) //nolint:gosec // nanoseconds within int64 range
	}
	return s
}
