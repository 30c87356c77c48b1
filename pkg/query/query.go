// Package query implements the generic read pipeline shared by every entity.
//
// A concrete entity query embeds *Query (or *Extended) parameterized with its own
// pointer type, so chained configuration calls return the concrete type:
//
//	type CollectionQuery struct {
//		*query.Query[*CollectionQuery, Collection]
//		ids []string
//	}
//
// Executing a query runs, in order: the false-query check, authorization, sub-query
// binding and finally the source, which renders entity filters, ordering, paging
// and projection.
package query

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/telemetry"
)

var tracer = otel.Tracer("datagate/pkg/query")

var (
	shortCircuitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: telemetry.Namespace,
		Name:      "query_short_circuit_count",
		Help:      "The number of queries answered without calling their source because they can match nothing.",
	}, []string{"entity", "reason"})

	queryDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: telemetry.Namespace,
		Name:      "query_duration_ms",
		Help:      "Time (in ms) spent executing an entity query, including source calls.",
		Buckets:   telemetry.DurationBuckets,
	}, []string{"entity", "operation", "in_memory"})
)

// Entity is implemented by every concrete entity query.
type Entity interface {
	// EntityName identifies the entity in logs, metrics and errors.
	EntityName() string
	// IsFalseQuery reports whether the configured filters can match nothing, e.g. a
	// filter collection that is set but empty.
	IsFalseQuery() bool
	// Policy describes how the entity is authorized.
	Policy() authz.Policy
}

// Binder is a query that can restrict another one through a projected column.
type Binder interface {
	IsFalse() bool
	Project(ctx context.Context, field string) (Projection, error)
}

type binding struct {
	local    string
	sub      Binder
	subField string
}

type settings struct {
	logger     logger.Logger
	authorizer *authz.Authorizer
}

type Option func(*settings)

func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithAuthorizer binds the query to the authorizer of the current request. Without
// one, any flags other than authz.None deny everything.
func WithAuthorizer(a *authz.Authorizer) Option {
	return func(s *settings) {
		s.authorizer = a
	}
}

// Query is the generic base of every entity query. It is request scoped and not safe
// for concurrent use.
type Query[Q any, E any] struct {
	self       Q
	entity     Entity
	source     Source[E]
	authorizer *authz.Authorizer
	logger     logger.Logger

	flags    authz.Flags
	paging   *Paging
	ordering Ordering
	fields   *fieldset.FieldSet
	distinct bool
	bindings []binding

	// err is the first configuration error; it is returned by every operation.
	err error
}

// New creates the base for self. entity is usually self as well.
func New[Q any, E any](self Q, entity Entity, source Source[E], opts ...Option) *Query[Q, E] {
	s := &settings{
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return &Query[Q, E]{
		self:       self,
		entity:     entity,
		source:     source,
		authorizer: s.authorizer,
		logger:     s.logger,
	}
}

func (q *Query[Q, E]) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Err returns the first configuration error.
func (q *Query[Q, E]) Err() error {
	return q.err
}

// Page sets the window to return.
func (q *Query[Q, E]) Page(offset, size int) Q {
	p, err := NewPaging(offset, size)
	if err != nil {
		q.fail(err)
		return q.self
	}
	q.paging = p
	return q.self
}

// WithPaging sets or clears the window to return.
func (q *Query[Q, E]) WithPaging(p *Paging) Q {
	q.paging = p
	return q.self
}

// Order sets the ordering. Fields the source cannot order by are ignored.
func (q *Query[Q, E]) Order(o Ordering) Q {
	q.ordering = o
	return q.self
}

// OrderBy parses items with ParseOrdering.
func (q *Query[Q, E]) OrderBy(items ...string) Q {
	o, err := ParseOrdering(items)
	if err != nil {
		q.fail(err)
		return q.self
	}
	q.ordering = o
	return q.self
}

// Fields sets the output fields the caller wants; the source projects only the
// columns needed for them.
func (q *Query[Q, E]) Fields(fs *fieldset.FieldSet) Q {
	q.fields = fs
	return q.self
}

func (q *Query[Q, E]) Distinct() Q {
	q.distinct = true
	return q.self
}

// Authorize selects the grant sources applied to the query.
func (q *Query[Q, E]) Authorize(flags authz.Flags) Q {
	q.flags = flags
	return q.self
}

// Bind restricts localField to the values of subField projected from sub.
func (q *Query[Q, E]) Bind(localField string, sub Binder, subField string) Q {
	q.bindings = append(q.bindings, binding{local: localField, sub: sub, subField: subField})
	return q.self
}

func (q *Query[Q, E]) Paging() *Paging {
	return q.paging
}

func (q *Query[Q, E]) Ordering() Ordering {
	return q.ordering
}

func (q *Query[Q, E]) FieldSet() *fieldset.FieldSet {
	return q.fields
}

// IsFalse reports whether the query, or any query bound to it, can match nothing.
func (q *Query[Q, E]) IsFalse() bool {
	if q.entity.IsFalseQuery() {
		return true
	}
	for _, b := range q.bindings {
		if b.sub.IsFalse() {
			return true
		}
	}
	return false
}

// Collect returns every matching record.
func (q *Query[Q, E]) Collect(ctx context.Context) (records []E, err error) {
	ctx, end := q.trace(ctx, "Collect")
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, "Collect")
	if err != nil {
		return nil, err
	}
	if empty {
		return []E{}, nil
	}
	return q.source.Collect(ctx, st)
}

// First returns the first matching record. The bool is false when nothing matched.
func (q *Query[Q, E]) First(ctx context.Context) (record E, found bool, err error) {
	ctx, end := q.trace(ctx, "First")
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, "First")
	if err != nil || empty {
		return record, false, err
	}
	st.Paging = &Paging{Offset: st.Paging.Skip(), Size: 1}

	records, err := q.source.Collect(ctx, st)
	if err != nil || len(records) == 0 {
		return record, false, err
	}
	return records[0], true, nil
}

// Count returns the number of matching records, ignoring paging.
func (q *Query[Q, E]) Count(ctx context.Context) (n int, err error) {
	ctx, end := q.trace(ctx, "Count")
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, "Count")
	if err != nil || empty {
		return 0, err
	}
	st.Ordering, st.Paging = nil, nil
	return q.source.Count(ctx, st)
}

// Any reports whether at least one record matches.
func (q *Query[Q, E]) Any(ctx context.Context) (ok bool, err error) {
	ctx, end := q.trace(ctx, "Any")
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, "Any")
	if err != nil || empty {
		return false, err
	}
	return q.exists(ctx, st)
}

func (q *Query[Q, E]) exists(ctx context.Context, st *Statement) (bool, error) {
	st.Ordering = nil
	st.Paging = &Paging{Size: 1}
	st.Fields = fieldset.New()
	records, err := q.source.Collect(ctx, st)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// Pluck returns the values of one field for every matching record.
func (q *Query[Q, E]) Pluck(ctx context.Context, field string) (values []any, err error) {
	ctx, end := q.trace(ctx, "Pluck")
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, "Pluck")
	if err != nil {
		return nil, err
	}
	if empty {
		return []any{}, nil
	}
	return q.source.Pluck(ctx, st, field)
}

// Max returns the largest value of field, or nil when nothing matched.
func (q *Query[Q, E]) Max(ctx context.Context, field string) (any, error) {
	return q.aggregate(ctx, "Max", AggregateMax, field)
}

// Min returns the smallest value of field, or nil when nothing matched.
func (q *Query[Q, E]) Min(ctx context.Context, field string) (any, error) {
	return q.aggregate(ctx, "Min", AggregateMin, field)
}

func (q *Query[Q, E]) aggregate(ctx context.Context, op string, fn AggregateFunc, field string) (value any, err error) {
	ctx, end := q.trace(ctx, op)
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, op)
	if err != nil || empty {
		return nil, err
	}
	st.Ordering, st.Paging = nil, nil
	return q.source.Aggregate(ctx, st, fn, field)
}

// Project returns the query reduced to one field, for use as a Bind target.
func (q *Query[Q, E]) Project(ctx context.Context, field string) (p Projection, err error) {
	ctx, end := q.trace(ctx, "Project")
	defer func() { end(err, false) }()

	st, empty, err := q.prepare(ctx, "Project")
	if err != nil {
		return nil, err
	}
	if empty {
		return StaticProjection{}, nil
	}
	st.Ordering, st.Paging = nil, nil
	return q.source.Project(ctx, st, field)
}

// prepare runs the stages that precede the source call. empty is true when the query
// is known to match nothing and the source must not be called.
func (q *Query[Q, E]) prepare(ctx context.Context, op string) (*Statement, bool, error) {
	if q.err != nil {
		return nil, false, q.err
	}
	if q.source == nil {
		return nil, false, ErrNoSource
	}

	if q.entity.IsFalseQuery() {
		q.shortCircuit(ctx, op, "false_filter")
		return nil, true, nil
	}
	for _, b := range q.bindings {
		if b.sub.IsFalse() {
			q.shortCircuit(ctx, op, "false_subquery")
			return nil, true, nil
		}
	}

	scope := q.authorizer.Scope(ctx, q.flags, q.entity.Policy())
	if scope.IsEmpty() {
		q.shortCircuit(ctx, op, "denied")
		return nil, true, nil
	}

	var bindings []Binding
	for _, b := range q.bindings {
		p, err := b.sub.Project(ctx, b.subField)
		if err != nil {
			return nil, false, err
		}
		if IsEmptyProjection(p) {
			q.shortCircuit(ctx, op, "empty_subquery")
			return nil, true, nil
		}
		bindings = append(bindings, Binding{Field: b.local, Projection: p})
	}

	return &Statement{
		Scope:    scope,
		Bindings: bindings,
		Ordering: q.ordering,
		Paging:   q.paging,
		Fields:   q.fields,
		Distinct: q.distinct,
	}, false, nil
}

func (q *Query[Q, E]) shortCircuit(ctx context.Context, op, reason string) {
	name := q.entity.EntityName()
	shortCircuitCounter.WithLabelValues(name, reason).Inc()
	q.logger.DebugWithContext(ctx, "query short-circuited",
		zap.String("entity", name),
		zap.String("operation", op),
		zap.String("reason", reason),
	)
}

func (q *Query[Q, E]) trace(ctx context.Context, op string) (context.Context, func(err error, inMemory bool)) {
	name := q.entity.EntityName()
	start := time.Now()
	ctx, span := tracer.Start(ctx, name+"."+op, trace.WithAttributes(attribute.String("entity", name)))

	return ctx, func(err error, inMemory bool) {
		defer span.End()
		span.SetAttributes(attribute.Bool("in_memory", inMemory))
		if err != nil {
			telemetry.TraceError(span, err)
		}

		elapsed := telemetry.Milliseconds(start)
		queryDurationHistogram.WithLabelValues(name, op, strconv.FormatBool(inMemory)).Observe(elapsed)
		q.logger.DebugWithContext(ctx, "query executed",
			zap.String("entity", name),
			zap.String("operation", op),
			zap.Bool("in_memory", inMemory),
			zap.Float64("duration_ms", elapsed),
			zap.Error(err),
		)
	}
}
