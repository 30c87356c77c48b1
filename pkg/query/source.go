package query

import (
	"context"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/fieldset"
)

// Statement is everything a Source needs to run one read. Entity filters are not
// part of it: a source is constructed with a reference to its entity query and
// renders those itself.
type Statement struct {
	Scope    authz.Scope
	Bindings []Binding
	Ordering Ordering
	Paging   *Paging
	Fields   *fieldset.FieldSet
	Distinct bool
}

// clone returns a shallow copy that can be adjusted without touching the original.
func (s *Statement) clone() *Statement {
	c := *s
	return &c
}

// Binding restricts Field to the values of a projected sub-query.
type Binding struct {
	Field      string
	Projection Projection
}

// Projection is a single column view of a query. Sources that share a datastore may
// render it natively; everything else materializes Values.
type Projection interface {
	Values(ctx context.Context) ([]any, error)
}

// StaticProjection is an already materialized projection.
type StaticProjection []any

func (p StaticProjection) Values(context.Context) ([]any, error) {
	return p, nil
}

// IsEmptyProjection reports whether p is known to yield nothing without executing it.
func IsEmptyProjection(p Projection) bool {
	if p == nil {
		return true
	}
	static, ok := p.(StaticProjection)
	return ok && len(static) == 0
}

type AggregateFunc string

const (
	AggregateMax AggregateFunc = "MAX"
	AggregateMin AggregateFunc = "MIN"
)

// Source executes statements for one entity.
type Source[E any] interface {
	Collect(ctx context.Context, st *Statement) ([]E, error)
	Count(ctx context.Context, st *Statement) (int, error)
	Pluck(ctx context.Context, st *Statement, field string) ([]any, error)
	Aggregate(ctx context.Context, st *Statement, fn AggregateFunc, field string) (any, error)
	Project(ctx context.Context, st *Statement, field string) (Projection, error)
}
