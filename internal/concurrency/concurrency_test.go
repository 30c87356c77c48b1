package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("runs_every_task", func(t *testing.T) {
		var ran atomic.Int32
		tasks := make([]Task, 5)
		for i := range tasks {
			tasks[i] = func(ctx context.Context) error {
				ran.Add(1)
				return nil
			}
		}
		require.NoError(t, RunAll(context.Background(), 2, tasks...))
		require.Equal(t, int32(5), ran.Load())
	})

	t.Run("returns_first_error_and_cancels", func(t *testing.T) {
		boom := errors.New("boom")
		err := RunAll(context.Background(), 2,
			func(ctx context.Context) error { return boom },
			func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		)
		require.ErrorIs(t, err, boom)
	})

	t.Run("sequential_stops_at_first_error", func(t *testing.T) {
		boom := errors.New("boom")
		var order []int
		err := RunAll(context.Background(), 1,
			func(ctx context.Context) error { order = append(order, 1); return nil },
			func(ctx context.Context) error { order = append(order, 2); return boom },
			func(ctx context.Context) error { order = append(order, 3); return nil },
		)
		require.ErrorIs(t, err, boom)
		require.Equal(t, []int{1, 2}, order)
	})

	t.Run("sequential_honours_cancelled_context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Int32
		err := RunAll(ctx, 1, func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, ran.Load())
	})
}
