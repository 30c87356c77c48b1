// Package concurrency runs independent tasks under a shared cancellation.
package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Task is one unit of work passed to RunAll.
type Task func(ctx context.Context) error

// RunAll runs the tasks on up to limit goroutines and returns the first error seen.
// After a failure the remaining tasks observe a cancelled context. With a limit of
// one or less the tasks run in order on the calling goroutine and stop at the first
// error.
func RunAll(ctx context.Context, limit int, tasks ...Task) error {
	if limit <= 1 || len(tasks) <= 1 {
		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := task(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(min(limit, len(tasks)))
	for _, task := range tasks {
		p.Go(task)
	}
	return p.Wait()
}
