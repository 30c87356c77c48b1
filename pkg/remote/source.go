package remote

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/openfga/datagate/pkg/query"
)

// Params translates the natively supported part of a statement, together with the
// entity's own filters, into request parameters.
type Params func(st *query.Statement) url.Values

// FieldValue reads an output field of a record, as needed to pluck or aggregate.
type FieldValue[R any] func(record R, field string) (any, bool)

// Source adapts an Endpoint to query.Source. The service evaluates paging and
// ordering through the "offset", "limit" and "order" parameters; the authorization
// scope is not sent and must be applied in memory by the entity.
type Source[R any] struct {
	endpoint *Endpoint[R]
	params   Params
	value    FieldValue[R]
}

var _ query.Source[struct{}] = (*Source[struct{}])(nil)

func NewSource[R any](endpoint *Endpoint[R], params Params, value FieldValue[R]) *Source[R] {
	if params == nil {
		params = func(*query.Statement) url.Values { return url.Values{} }
	}
	return &Source[R]{endpoint: endpoint, params: params, value: value}
}

func (s *Source[R]) values(st *query.Statement) url.Values {
	params := s.params(st)
	if params == nil {
		params = url.Values{}
	}
	if offset := st.Paging.Skip(); offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if limit := st.Paging.Limit(); limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if !st.Ordering.IsEmpty() {
		params.Set("order", st.Ordering.String())
	}
	if !st.Fields.IsEmpty() {
		params.Set("fields", st.Fields.String())
	}
	return params
}

func (s *Source[R]) Collect(ctx context.Context, st *query.Statement) ([]R, error) {
	return s.endpoint.Collect(ctx, s.values(st))
}

func (s *Source[R]) Count(ctx context.Context, st *query.Statement) (int, error) {
	unpaged := *st
	unpaged.Paging = nil
	unpaged.Ordering = nil
	return s.endpoint.Count(ctx, s.values(&unpaged))
}

// Pluck collects the matching records and reads field from each.
func (s *Source[R]) Pluck(ctx context.Context, st *query.Statement, field string) ([]any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("%w: pluck %q", query.ErrUnsupportedOperation, field)
	}

	narrowed := *st
	narrowed.Fields = st.Fields.Ensure(field)
	records, err := s.Collect(ctx, &narrowed)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(records))
	seen := make(map[any]struct{}, len(records))
	for _, record := range records {
		v, ok := s.value(record, field)
		if !ok {
			return nil, fmt.Errorf("%w: pluck %q", query.ErrUnsupportedOperation, field)
		}
		if st.Distinct {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
		}
		values = append(values, v)
	}
	return values, nil
}

// Aggregate plucks field and reduces it. A result of nil means no rows.
func (s *Source[R]) Aggregate(ctx context.Context, st *query.Statement, fn query.AggregateFunc, field string) (any, error) {
	unpaged := *st
	unpaged.Paging = nil
	unpaged.Ordering = nil
	values, err := s.Pluck(ctx, &unpaged, field)
	if err != nil {
		return nil, err
	}

	var best any
	for _, v := range values {
		if best == nil {
			best = v
			continue
		}
		c, err := compareValues(v, best)
		if err != nil {
			return nil, fmt.Errorf("%w: %s(%s): %w", query.ErrUnsupportedOperation, fn, field, err)
		}
		if (fn == query.AggregateMax && c > 0) || (fn == query.AggregateMin && c < 0) {
			best = v
		}
	}
	return best, nil
}

// Project materializes the plucked values; remote sources have no sub-select.
func (s *Source[R]) Project(ctx context.Context, st *query.Statement, field string) (query.Projection, error) {
	values, err := s.Pluck(ctx, st, field)
	if err != nil {
		return nil, err
	}
	return query.StaticProjection(values), nil
}

func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y), nil
		}
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y), nil
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}
