package query

import (
	"context"
	"slices"

	"github.com/openfga/datagate/pkg/authz"
)

// InMemory is implemented by entity queries whose source cannot evaluate every
// filter or ordering natively.
type InMemory[E any] interface {
	// FilterInMemory reports whether the statement, combined with the entity's own
	// filters, needs filtering after the fetch. A scope other than "all" usually does.
	FilterInMemory(st *Statement) bool
	// OrderInMemory reports whether the ordering must be applied after the fetch.
	OrderInMemory(o Ordering) bool
	// Match evaluates the in-memory filters and scope against one record.
	Match(st *Statement, record E) bool
	// Compare returns the comparator for an output field.
	Compare(field string) (Comparator[E], bool)
	// RequiredFields lists the fields Match and Compare read.
	RequiredFields() []string
}

// Extended decorates Query with an in-memory fallback. Paging is always applied
// after in-memory filtering and ordering; the query's own configuration is never
// modified by an operation.
type Extended[Q any, E any] struct {
	*Query[Q, E]
	memory InMemory[E]
}

// NewExtended creates the base for self. entity and memory are usually self too.
func NewExtended[Q any, E any](self Q, entity Entity, memory InMemory[E], source Source[E], opts ...Option) *Extended[Q, E] {
	return &Extended[Q, E]{
		Query:  New[Q, E](self, entity, source, opts...),
		memory: memory,
	}
}

type plan struct {
	filter bool
	order  bool
}

func (p plan) inMemory() bool {
	return p.filter || p.order
}

func (x *Extended[Q, E]) plan(st *Statement) plan {
	return plan{
		filter: x.memory.FilterInMemory(st),
		order:  !st.Ordering.IsEmpty() && x.memory.OrderInMemory(st.Ordering),
	}
}

func (x *Extended[Q, E]) unsupported(op string) error {
	return &InvalidOperationError{Entity: x.entity.EntityName(), Op: op}
}

// RequiresInMemory reports whether executing the query as configured needs the
// in-memory fallback. Authorization is not considered.
func (x *Extended[Q, E]) RequiresInMemory() bool {
	return x.plan(&Statement{Scope: authz.AllowAll(), Ordering: x.ordering}).inMemory()
}

// fetch runs st against the source, falling back to memory as planned. st is not
// modified; the source receives a detached copy without paging.
func (x *Extended[Q, E]) fetch(ctx context.Context, st *Statement, p plan) ([]E, error) {
	if !p.inMemory() {
		return x.source.Collect(ctx, st)
	}

	detached := st.clone()
	detached.Paging = nil
	detached.Fields = st.Fields.Ensure(x.memory.RequiredFields()...)
	if p.order {
		detached.Ordering = nil
		detached.Fields = detached.Fields.Ensure(st.Ordering.Fields()...)
	}

	candidates, err := x.source.Collect(ctx, detached)
	if err != nil {
		return nil, err
	}

	records := candidates
	if p.filter {
		records = make([]E, 0, len(candidates))
		for _, record := range candidates {
			if x.memory.Match(st, record) {
				records = append(records, record)
			}
		}
	}

	if p.order {
		if compare := SortFunc(st.Ordering, x.memory.Compare); compare != nil {
			slices.SortStableFunc(records, compare)
		}
	}

	return ApplyPaging(st.Paging, records), nil
}

func (x *Extended[Q, E]) Collect(ctx context.Context) (records []E, err error) {
	var p plan
	ctx, end := x.trace(ctx, "Collect")
	defer func() { end(err, p.inMemory()) }()

	st, empty, err := x.prepare(ctx, "Collect")
	if err != nil {
		return nil, err
	}
	if empty {
		return []E{}, nil
	}

	p = x.plan(st)
	if p.inMemory() && len(st.Bindings) > 0 {
		return nil, x.unsupported("Bind")
	}
	return x.fetch(ctx, st, p)
}

func (x *Extended[Q, E]) First(ctx context.Context) (record E, found bool, err error) {
	var p plan
	ctx, end := x.trace(ctx, "First")
	defer func() { end(err, p.inMemory()) }()

	st, empty, err := x.prepare(ctx, "First")
	if err != nil || empty {
		return record, false, err
	}
	st.Paging = &Paging{Offset: st.Paging.Skip(), Size: 1}

	p = x.plan(st)
	if p.inMemory() && len(st.Bindings) > 0 {
		return record, false, x.unsupported("Bind")
	}

	records, err := x.fetch(ctx, st, p)
	if err != nil || len(records) == 0 {
		return record, false, err
	}
	return records[0], true, nil
}

func (x *Extended[Q, E]) Count(ctx context.Context) (n int, err error) {
	var p plan
	ctx, end := x.trace(ctx, "Count")
	defer func() { end(err, p.inMemory()) }()

	st, empty, err := x.prepare(ctx, "Count")
	if err != nil || empty {
		return 0, err
	}
	st.Ordering, st.Paging = nil, nil

	p = x.plan(st)
	if !p.inMemory() {
		return x.source.Count(ctx, st)
	}
	if len(st.Bindings) > 0 {
		return 0, x.unsupported("Bind")
	}

	records, err := x.fetch(ctx, st, p)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (x *Extended[Q, E]) Any(ctx context.Context) (ok bool, err error) {
	var p plan
	ctx, end := x.trace(ctx, "Any")
	defer func() { end(err, p.inMemory()) }()

	st, empty, err := x.prepare(ctx, "Any")
	if err != nil || empty {
		return false, err
	}
	st.Ordering, st.Paging = nil, nil

	p = x.plan(st)
	if !p.inMemory() {
		return x.exists(ctx, st)
	}
	if len(st.Bindings) > 0 {
		return false, x.unsupported("Bind")
	}

	records, err := x.fetch(ctx, st, p)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// Pluck fails with ErrUnsupportedOperation when in-memory processing is required.
func (x *Extended[Q, E]) Pluck(ctx context.Context, field string) (values []any, err error) {
	ctx, end := x.trace(ctx, "Pluck")
	defer func() { end(err, false) }()

	st, empty, err := x.prepare(ctx, "Pluck")
	if err != nil {
		return nil, err
	}
	if empty {
		return []any{}, nil
	}
	if x.plan(st).inMemory() {
		return nil, x.unsupported("Pluck")
	}
	return x.source.Pluck(ctx, st, field)
}

// Max fails with ErrUnsupportedOperation when in-memory filtering is required.
func (x *Extended[Q, E]) Max(ctx context.Context, field string) (any, error) {
	return x.aggregate(ctx, "Max", AggregateMax, field)
}

// Min fails with ErrUnsupportedOperation when in-memory filtering is required.
func (x *Extended[Q, E]) Min(ctx context.Context, field string) (any, error) {
	return x.aggregate(ctx, "Min", AggregateMin, field)
}

func (x *Extended[Q, E]) aggregate(ctx context.Context, op string, fn AggregateFunc, field string) (value any, err error) {
	ctx, end := x.trace(ctx, op)
	defer func() { end(err, false) }()

	st, empty, err := x.prepare(ctx, op)
	if err != nil || empty {
		return nil, err
	}
	st.Ordering, st.Paging = nil, nil
	if x.plan(st).inMemory() {
		return nil, x.unsupported(op)
	}
	return x.source.Aggregate(ctx, st, fn, field)
}

// Project fails with ErrUnsupportedOperation when in-memory filtering is required,
// so an Extended query can only be bound when its source evaluates it fully.
func (x *Extended[Q, E]) Project(ctx context.Context, field string) (p Projection, err error) {
	ctx, end := x.trace(ctx, "Project")
	defer func() { end(err, false) }()

	st, empty, err := x.prepare(ctx, "Project")
	if err != nil {
		return nil, err
	}
	if empty {
		return StaticProjection{}, nil
	}
	st.Ordering, st.Paging = nil, nil
	if x.plan(st).inMemory() {
		return nil, x.unsupported("Project")
	}
	return x.source.Project(ctx, st, field)
}
