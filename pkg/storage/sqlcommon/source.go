package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/storage"
	"github.com/openfga/datagate/pkg/telemetry"
)

// Filter returns the entity filter predicates; unset filters contribute nothing.
type Filter func() []sq.Sqlizer

// Source evaluates query statements against one table.
type Source[E any] struct {
	ds     *Datastore
	table  *Table[E]
	filter Filter
}

var _ query.Source[struct{}] = (*Source[struct{}])(nil)

// NewSource creates a source over table. filter is called on every execution so it
// reflects the entity query's current configuration.
func NewSource[E any](ds *Datastore, table *Table[E], filter Filter) *Source[E] {
	if filter == nil {
		filter = func() []sq.Sqlizer { return nil }
	}
	return &Source[E]{ds: ds, table: table, filter: filter}
}

func (s *Source[E]) startTrace(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, s.ds.engine+"."+op, trace.WithAttributes(attribute.String("table", s.table.Name)))
}

func (s *Source[E]) where(ctx context.Context, st *query.Statement) (sq.And, error) {
	conds := sq.And{}
	conds = append(conds, s.filter()...)

	if !st.Scope.All {
		conds = append(conds, s.scope(st))
	}

	for _, b := range st.Bindings {
		col, ok := s.table.Column(b.Field)
		if !ok {
			return nil, storage.UnknownFieldError(s.table.Name, b.Field)
		}
		cond, err := s.membership(ctx, col, b.Projection)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}

	return conds, nil
}

func (s *Source[E]) scope(st *query.Statement) sq.Sqlizer {
	ors := sq.Or{}
	if len(st.Scope.IDs) > 0 {
		ors = append(ors, sq.Eq{s.table.idColumn(): st.Scope.IDs})
	}
	if len(st.Scope.GroupCodes) > 0 && s.table.GroupColumn != "" {
		ors = append(ors, sq.Eq{s.table.GroupColumn: st.Scope.GroupCodes})
	}
	if st.Scope.OwnerID != "" && s.table.OwnerColumn != "" {
		ors = append(ors, sq.Eq{s.table.OwnerColumn: st.Scope.OwnerID})
	}
	if len(ors) == 0 {
		return sq.Expr("1 = 0")
	}
	return ors
}

// membership renders "col IN (projection)". Projections of the same datastore are
// rendered as a sub-select; anything else is materialized.
func (s *Source[E]) membership(ctx context.Context, col string, p query.Projection) (sq.Sqlizer, error) {
	if sub, ok := p.(*Subselect); ok && sub.ds == s.ds {
		return sq.Expr(col+" IN (?)", sub.builder), nil
	}

	values, err := p.Values(ctx)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return sq.Expr("1 = 0"), nil
	}
	return sq.Eq{col: values}, nil
}

func (s *Source[E]) selectBuilder(ctx context.Context, st *query.Statement, columns ...string) (sq.SelectBuilder, error) {
	conds, err := s.where(ctx, st)
	if err != nil {
		return sq.SelectBuilder{}, err
	}

	sb := s.ds.stbl.Select(columns...).From(s.table.Name).Where(conds)
	if st.Distinct {
		sb = sb.Distinct()
	}

	for _, item := range st.Ordering {
		col, ok := s.table.Column(item.Field)
		if !ok {
			continue
		}
		if item.Descending {
			sb = sb.OrderBy(col + " DESC")
		} else {
			sb = sb.OrderBy(col + " ASC")
		}
	}

	if limit := st.Paging.Limit(); limit > 0 {
		sb = sb.Limit(uint64(limit))
	} else if st.Paging.Skip() > 0 {
		sb = sb.Limit(math.MaxInt64)
	}
	if offset := st.Paging.Skip(); offset > 0 {
		sb = sb.Offset(uint64(offset))
	}

	return sb, nil
}

func (s *Source[E]) Collect(ctx context.Context, st *query.Statement) ([]E, error) {
	ctx, span := s.startTrace(ctx, "Collect")
	defer span.End()

	columns := s.table.Project(st.Fields)
	sb, err := s.selectBuilder(ctx, st, columns...)
	if err != nil {
		return nil, err
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	defer rows.Close()

	var records []E
	for rows.Next() {
		var rec E
		dest := make([]any, len(columns))
		for i, col := range columns {
			dest[i] = s.table.Bind(&rec, col)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, s.fail(ctx, span, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, span, err)
	}

	span.SetAttributes(attribute.Int("rows", len(records)))
	return records, nil
}

func (s *Source[E]) Count(ctx context.Context, st *query.Statement) (int, error) {
	ctx, span := s.startTrace(ctx, "Count")
	defer span.End()

	var cb sq.SelectBuilder
	if st.Distinct {
		inner, err := s.selectBuilder(ctx, st, s.table.Key)
		if err != nil {
			return 0, err
		}
		cb = s.ds.stbl.Select("COUNT(*)").FromSelect(inner, "d")
	} else {
		conds, err := s.where(ctx, st)
		if err != nil {
			return 0, err
		}
		cb = s.ds.stbl.Select("COUNT(*)").From(s.table.Name).Where(conds)
	}

	var n int
	if err := cb.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, s.fail(ctx, span, err)
	}
	return n, nil
}

func (s *Source[E]) Pluck(ctx context.Context, st *query.Statement, field string) ([]any, error) {
	ctx, span := s.startTrace(ctx, "Pluck")
	defer span.End()

	col, ok := s.table.Column(field)
	if !ok {
		return nil, storage.UnknownFieldError(s.table.Name, field)
	}

	sb, err := s.selectBuilder(ctx, st, col)
	if err != nil {
		return nil, err
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	defer rows.Close()

	values, err := scanValues(rows)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return values, nil
}

func (s *Source[E]) Aggregate(ctx context.Context, st *query.Statement, fn query.AggregateFunc, field string) (any, error) {
	ctx, span := s.startTrace(ctx, string(fn))
	defer span.End()

	col, ok := s.table.Column(field)
	if !ok {
		return nil, storage.UnknownFieldError(s.table.Name, field)
	}

	conds, err := s.where(ctx, st)
	if err != nil {
		return nil, err
	}

	var v any
	err = s.ds.stbl.Select(fmt.Sprintf("%s(%s)", fn, col)).From(s.table.Name).Where(conds).QueryRowContext(ctx).Scan(&v)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return normalize(v), nil
}

// Project returns a lazily evaluated sub-select of field.
func (s *Source[E]) Project(ctx context.Context, st *query.Statement, field string) (query.Projection, error) {
	col, ok := s.table.Column(field)
	if !ok {
		return nil, storage.UnknownFieldError(s.table.Name, field)
	}

	sb, err := s.selectBuilder(ctx, st, col)
	if err != nil {
		return nil, err
	}
	return &Subselect{ds: s.ds, builder: sb}, nil
}

func (s *Source[E]) fail(ctx context.Context, span trace.Span, err error) error {
	telemetry.TraceError(span, err)
	s.ds.logger.ErrorWithContext(ctx, "sql statement failed",
		zap.String("engine", s.ds.engine),
		zap.String("table", s.table.Name),
		zap.Error(err),
	)
	return s.ds.handleSQLError(err)
}

// Subselect is a single column select of one Datastore.
type Subselect struct {
	ds      *Datastore
	builder sq.SelectBuilder
}

var _ query.Projection = (*Subselect)(nil)

// ToSql renders the sub-select, for logging and tests.
func (p *Subselect) ToSql() (string, []any, error) {
	return p.builder.ToSql()
}

// Values runs the sub-select.
func (p *Subselect) Values(ctx context.Context) ([]any, error) {
	rows, err := p.builder.QueryContext(ctx)
	if err != nil {
		return nil, p.ds.handleSQLError(err)
	}
	defer rows.Close()

	values, err := scanValues(rows)
	if err != nil {
		return nil, p.ds.handleSQLError(err)
	}
	return values, nil
}

func scanValues(rows *sql.Rows) ([]any, error) {
	values := []any{}
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, normalize(v))
	}
	return values, rows.Err()
}

// normalize converts driver byte slices, as returned by mysql for text columns, to
// strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
