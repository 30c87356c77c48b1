package query

import (
	"context"
	"slices"
	"sync"

	"github.com/openfga/datagate/pkg/authz"
)

type record struct {
	ID     string
	Rank   int
	Owner  string
	Status string
}

// fakeSource records every call and serves a fixed set of records.
type fakeSource struct {
	mu         sync.Mutex
	records    []record
	calls      []string
	statements []*Statement
}

func (f *fakeSource) observe(op string, st *Statement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	f.statements = append(f.statements, st)
}

func (f *fakeSource) last() *Statement {
	return f.statements[len(f.statements)-1]
}

func (f *fakeSource) Collect(_ context.Context, st *Statement) ([]record, error) {
	f.observe("Collect", st)
	return slices.Clone(f.records), nil
}

func (f *fakeSource) Count(_ context.Context, st *Statement) (int, error) {
	f.observe("Count", st)
	return len(f.records), nil
}

func (f *fakeSource) Pluck(_ context.Context, st *Statement, _ string) ([]any, error) {
	f.observe("Pluck", st)
	values := make([]any, 0, len(f.records))
	for _, r := range f.records {
		values = append(values, r.ID)
	}
	return values, nil
}

func (f *fakeSource) Aggregate(_ context.Context, st *Statement, fn AggregateFunc, _ string) (any, error) {
	f.observe(string(fn), st)
	if len(f.records) == 0 {
		return nil, nil
	}
	ranks := make([]int, 0, len(f.records))
	for _, r := range f.records {
		ranks = append(ranks, r.Rank)
	}
	if fn == AggregateMax {
		return slices.Max(ranks), nil
	}
	return slices.Min(ranks), nil
}

func (f *fakeSource) Project(ctx context.Context, st *Statement, field string) (Projection, error) {
	f.observe("Project", st)
	values := make([]any, 0, len(f.records))
	for _, r := range f.records {
		values = append(values, r.ID)
	}
	return StaticProjection(values), nil
}

// recordQuery is an entity query whose source evaluates everything natively.
type recordQuery struct {
	*Query[*recordQuery, record]
	ids []string
}

func newRecordQuery(src Source[record], opts ...Option) *recordQuery {
	q := &recordQuery{}
	q.Query = New[*recordQuery, record](q, q, src, opts...)
	return q
}

func (q *recordQuery) EntityName() string   { return "record" }
func (q *recordQuery) IsFalseQuery() bool   { return q.ids != nil && len(q.ids) == 0 }
func (q *recordQuery) Policy() authz.Policy { return authz.Policy{Kind: "record"} }

func (q *recordQuery) IDs(ids []string) *recordQuery {
	q.ids = ids
	return q
}

// remoteQuery is an entity query whose source filters on a single status only and
// cannot order.
type remoteQuery struct {
	*Extended[*remoteQuery, record]
	statuses []string
}

func newRemoteQuery(src Source[record], opts ...Option) *remoteQuery {
	q := &remoteQuery{}
	q.Extended = NewExtended[*remoteQuery, record](q, q, q, src, opts...)
	return q
}

func (q *remoteQuery) EntityName() string   { return "remote" }
func (q *remoteQuery) IsFalseQuery() bool   { return q.statuses != nil && len(q.statuses) == 0 }
func (q *remoteQuery) Policy() authz.Policy { return authz.Policy{Kind: "remote"} }

func (q *remoteQuery) Statuses(statuses []string) *remoteQuery {
	q.statuses = statuses
	return q
}

func (q *remoteQuery) FilterInMemory(st *Statement) bool {
	return len(q.statuses) > 1 || !st.Scope.All
}

func (q *remoteQuery) OrderInMemory(Ordering) bool {
	return true
}

func (q *remoteQuery) Match(st *Statement, r record) bool {
	if len(q.statuses) > 1 && !slices.Contains(q.statuses, r.Status) {
		return false
	}
	return st.Scope.Allows(r.ID, r.Owner)
}

func (q *remoteQuery) Compare(field string) (Comparator[record], bool) {
	switch field {
	case "Rank":
		return CompareBy(func(r record) int { return r.Rank }), true
	case "ID":
		return CompareBy(func(r record) string { return r.ID }), true
	}
	return nil, false
}

func (q *remoteQuery) RequiredFields() []string {
	return []string{"Status", "Owner"}
}
