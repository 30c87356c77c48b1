// Package builder shapes source records into output models for a FieldSet.
package builder

import (
	"context"

	"github.com/openfga/datagate/internal/concurrency"
	"github.com/openfga/datagate/pkg/fieldset"
)

// Builder turns source records into output models. The result is index aligned
// with records, records are never modified and an empty FieldSet yields an empty
// result without any work.
type Builder[M any, R any] interface {
	Build(ctx context.Context, fields *fieldset.FieldSet, records []R) ([]M, error)
}

// Func adapts an ordinary function to Builder.
type Func[M any, R any] func(ctx context.Context, fields *fieldset.FieldSet, records []R) ([]M, error)

func (f Func[M, R]) Build(ctx context.Context, fields *fieldset.FieldSet, records []R) ([]M, error) {
	if fields.IsEmpty() || len(records) == 0 {
		return []M{}, nil
	}
	return f(ctx, fields, records)
}

// Set copies v into dst when field is requested.
func Set[T any](fields *fieldset.FieldSet, field string, dst *T, v T) {
	if fields.HasField(field) {
		*dst = v
	}
}

// Step is one independent relation hydration.
type Step func(ctx context.Context) error

// Hydrate runs the steps in order, or concurrently on up to parallelism goroutines
// when parallelism is greater than one. Steps must write to disjoint state.
func Hydrate(ctx context.Context, parallelism int, steps ...Step) error {
	tasks := make([]concurrency.Task, len(steps))
	for i, step := range steps {
		tasks[i] = concurrency.Task(step)
	}
	return concurrency.RunAll(ctx, parallelism, tasks...)
}
