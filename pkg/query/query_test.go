package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFalseQueryNeverCallsSource(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{records: []record{{ID: "a"}}}
	q := newRecordQuery(src).IDs([]string{})

	records, err := q.Collect(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	ok, err := q.Any(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	_, found, err := q.First(ctx)
	require.NoError(t, err)
	require.False(t, found)

	values, err := q.Pluck(ctx, "ID")
	require.NoError(t, err)
	require.Empty(t, values)

	maxRank, err := q.Max(ctx, "Rank")
	require.NoError(t, err)
	require.Nil(t, maxRank)

	p, err := q.Project(ctx, "ID")
	require.NoError(t, err)
	require.True(t, IsEmptyProjection(p))

	require.Empty(t, src.calls)
}

func TestFalseSubQueryMakesParentFalse(t *testing.T) {
	ctx := context.Background()
	parentSrc := &fakeSource{records: []record{{ID: "a"}}}
	childSrc := &fakeSource{records: []record{{ID: "b"}}}

	child := newRecordQuery(childSrc).IDs([]string{})
	parent := newRecordQuery(parentSrc).IDs([]string{"a"}).Bind("ID", child, "ID")

	require.True(t, parent.IsFalse())

	records, err := parent.Collect(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Empty(t, parentSrc.calls)
	require.Empty(t, childSrc.calls)
}

func TestBindProjectsSubQuery(t *testing.T) {
	ctx := context.Background()
	parentSrc := &fakeSource{records: []record{{ID: "a"}}}
	childSrc := &fakeSource{records: []record{{ID: "x"}, {ID: "y"}}}

	child := newRecordQuery(childSrc).Page(0, 1).OrderBy("Rank")
	parent := newRecordQuery(parentSrc).Bind("Owner", child, "ID")

	_, err := parent.Collect(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"Project"}, childSrc.calls)
	require.Nil(t, childSrc.last().Paging)
	require.Nil(t, childSrc.last().Ordering)

	st := parentSrc.last()
	require.Len(t, st.Bindings, 1)
	require.Equal(t, "Owner", st.Bindings[0].Field)
	values, err := st.Bindings[0].Projection.Values(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"x", "y"}, values)
}

func TestEmptySubQueryProjectionShortCircuits(t *testing.T) {
	ctx := context.Background()
	parentSrc := &fakeSource{records: []record{{ID: "a"}}}
	childSrc := &fakeSource{}

	parent := newRecordQuery(parentSrc).Bind("Owner", newRecordQuery(childSrc), "ID")

	ok, err := parent.Any(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []string{"Project"}, childSrc.calls)
	require.Empty(t, parentSrc.calls)
}

func TestAuthorizationScope(t *testing.T) {
	ctx := context.Background()

	t.Run("no_authorizer_denies", func(t *testing.T) {
		src := &fakeSource{records: []record{{ID: "a"}}}
		log, logs := logger.NewObserverLogger("debug")

		records, err := newRecordQuery(src, WithLogger(log)).Authorize(authz.Owner).Collect(ctx)
		require.NoError(t, err)
		require.Empty(t, records)
		require.Empty(t, src.calls)
		require.Equal(t, "query short-circuited", logs.All()[0].Message)
		require.Equal(t, "denied", logs.All()[0].ContextMap()["reason"])
	})

	t.Run("scope_is_forwarded", func(t *testing.T) {
		src := &fakeSource{records: []record{{ID: "a"}}}
		authorizer := authz.NewAuthorizer(&authz.StaticResolver{
			PrincipalID: "u-1",
			Affiliated:  map[string][]string{"record": {"a", "b"}},
		})

		_, err := newRecordQuery(src, WithAuthorizer(authorizer)).Authorize(authz.Context | authz.Owner).Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, authz.Scope{IDs: []string{"a", "b"}, OwnerID: "u-1"}, src.last().Scope)
	})

	t.Run("none_is_unfiltered", func(t *testing.T) {
		src := &fakeSource{records: []record{{ID: "a"}}}

		_, err := newRecordQuery(src).Collect(ctx)
		require.NoError(t, err)
		require.True(t, src.last().Scope.All)
	})
}

func TestStatementCarriesConfiguration(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{records: []record{{ID: "a"}, {ID: "b"}}}
	fields := fieldset.New("ID", "Owner")

	q := newRecordQuery(src).Page(2, 3).OrderBy("-Rank").Fields(fields).Distinct()

	_, err := q.Collect(ctx)
	require.NoError(t, err)
	st := src.last()
	require.Equal(t, &Paging{Offset: 2, Size: 3}, st.Paging)
	require.Equal(t, Desc("Rank"), st.Ordering)
	require.True(t, st.Fields.Equal(fields))
	require.True(t, st.Distinct)

	_, err = q.Count(ctx)
	require.NoError(t, err)
	require.Nil(t, src.last().Paging)
	require.Nil(t, src.last().Ordering)

	record, found, err := q.First(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", record.ID)
	require.Equal(t, &Paging{Offset: 2, Size: 1}, src.last().Paging)

	ok, err := q.Any(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, src.last().Fields.IsEmpty())

	minRank, err := q.Min(ctx, "Rank")
	require.NoError(t, err)
	require.Equal(t, 0, minRank)
	require.Equal(t, []string{"Collect", "Count", "Collect", "Collect", "MIN"}, src.calls)

	require.Equal(t, &Paging{Offset: 2, Size: 3}, q.Paging())
}

func TestConfigurationErrorIsSticky(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{records: []record{{ID: "a"}}}

	q := newRecordQuery(src).Page(-1, 10).Page(0, 10)
	require.ErrorIs(t, q.Err(), ErrInvalidPaging)

	_, err := q.Collect(ctx)
	require.ErrorIs(t, err, ErrInvalidPaging)

	_, err = newRecordQuery(src).OrderBy("").Count(ctx)
	require.ErrorIs(t, err, ErrInvalidOrdering)

	require.Empty(t, src.calls)
}

func TestNoSource(t *testing.T) {
	_, err := newRecordQuery(nil).Collect(context.Background())
	require.ErrorIs(t, err, ErrNoSource)
}
