package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/multierr"
)

// DefaultSize returns the number of logical CPUs, falling back to the Go
// runtime's view when the host cannot be queried.
func DefaultSize() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return max(runtime.NumCPU(), 1)
}

// ForEach runs fn for every index in [0, n) on a pool of size workers.
// Submission blocks while all workers are busy. With failFast set, no new
// work is started after the first error; work already running finishes.
// All errors are returned combined.
func ForEach(ctx context.Context, size, n int, failFast bool, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultSize()
	}
	size = min(size, n)

	pool, err := ants.NewPool(size, ants.WithPreAlloc(true))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		mutex   sync.Mutex
		errs    error
		stopped atomic.Bool
	)
	record := func(err error) {
		mutex.Lock()
		errs = multierr.Append(errs, err)
		mutex.Unlock()
		if failFast {
			stopped.Store(true)
		}
	}

	for i := 0; i < n; i++ {
		if stopped.Load() || ctx.Err() != nil {
			break
		}
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if stopped.Load() || ctx.Err() != nil {
				return
			}
			if err := fn(ctx, i); err != nil {
				record(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			record(fmt.Errorf("submit task %d: %w", i, submitErr))
		}
	}

	wg.Wait()
	return errs
}
