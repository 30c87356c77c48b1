package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/fieldset"
)

func shuffledRecords() []record {
	ranks := []int{7, 2, 9, 0, 5, 1, 8, 3, 6, 4}
	records := make([]record, 0, len(ranks))
	for _, rank := range ranks {
		records = append(records, record{ID: string(rune('a' + rank)), Rank: rank, Status: "done"})
	}
	return records
}

func ranks(records []record) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		out = append(out, r.Rank)
	}
	return out
}

func TestInMemoryOrderAndPage(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{records: shuffledRecords()}

	q := newRemoteQuery(src).OrderBy("Rank").Page(2, 3).Fields(fieldset.New("ID"))

	for i := 0; i < 3; i++ {
		records, err := q.Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []int{2, 3, 4}, ranks(records))
	}

	st := src.last()
	require.Nil(t, st.Paging)
	require.Nil(t, st.Ordering)
	require.Equal(t, []string{"ID", "Status", "Owner", "Rank"}, st.Fields.Fields())

	require.Equal(t, &Paging{Offset: 2, Size: 3}, q.Paging())
	require.Equal(t, Asc("Rank"), q.Ordering())
	require.Equal(t, []string{"ID"}, q.FieldSet().Fields())
}

func TestInMemoryDescendingFirst(t *testing.T) {
	src := &fakeSource{records: shuffledRecords()}

	record, found, err := newRemoteQuery(src).OrderBy("-Rank").First(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 9, record.Rank)
}

func TestInMemoryFiltering(t *testing.T) {
	ctx := context.Background()
	records := []record{
		{ID: "a", Status: "running", Owner: "u-1"},
		{ID: "b", Status: "failed", Owner: "u-2"},
		{ID: "c", Status: "done", Owner: "u-1"},
	}

	t.Run("multiple_statuses", func(t *testing.T) {
		src := &fakeSource{records: records}
		q := newRemoteQuery(src).Statuses([]string{"running", "failed"})

		n, err := q.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		ok, err := q.Any(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		require.Equal(t, []string{"Collect", "Collect"}, src.calls)
	})

	t.Run("scope", func(t *testing.T) {
		src := &fakeSource{records: records}
		authorizer := authz.NewAuthorizer(&authz.StaticResolver{PrincipalID: "u-1"})
		q := newRemoteQuery(src, WithAuthorizer(authorizer)).Authorize(authz.Owner).OrderBy("ID")

		got, err := q.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "a", got[0].ID)
		require.Equal(t, "c", got[1].ID)
	})

	t.Run("native_passthrough", func(t *testing.T) {
		src := &fakeSource{records: records}
		q := newRemoteQuery(src).Statuses([]string{"done"}).Page(0, 2)
		require.False(t, q.RequiresInMemory())

		_, err := q.Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, &Paging{Size: 2}, src.last().Paging)

		n, err := q.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)
		require.Equal(t, []string{"Collect", "Count"}, src.calls)
	})
}

func TestInMemoryRejectsRawProjections(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{records: shuffledRecords()}
	q := newRemoteQuery(src).Statuses([]string{"done", "failed"})
	require.True(t, q.RequiresInMemory())

	_, err := q.Pluck(ctx, "ID")
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	var invalid *InvalidOperationError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, &InvalidOperationError{Entity: "remote", Op: "Pluck"}, invalid)

	_, err = q.Max(ctx, "Rank")
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	_, err = q.Min(ctx, "Rank")
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	_, err = q.Project(ctx, "ID")
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	require.Empty(t, src.calls)

	ordered := newRemoteQuery(src).OrderBy("Rank")
	_, err = ordered.Pluck(ctx, "ID")
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	maxRank, err := ordered.Max(ctx, "Rank")
	require.NoError(t, err)
	require.Equal(t, 9, maxRank)
}

func TestInMemoryRejectsBinding(t *testing.T) {
	ctx := context.Background()
	childSrc := &fakeSource{records: []record{{ID: "a"}}}
	src := &fakeSource{records: shuffledRecords()}

	q := newRemoteQuery(src).Statuses([]string{"done", "failed"}).Bind("ID", newRecordQuery(childSrc), "ID")

	_, err := q.Collect(ctx)
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.Empty(t, src.calls)

	native := newRemoteQuery(src).Bind("ID", newRecordQuery(childSrc), "ID")
	_, err = native.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, src.last().Bindings, 1)
}

func TestExtendedFalseQuery(t *testing.T) {
	src := &fakeSource{records: shuffledRecords()}

	records, err := newRemoteQuery(src).Statuses([]string{}).OrderBy("Rank").Page(0, 2).Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
	require.Empty(t, src.calls)
}
