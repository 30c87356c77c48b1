package entities

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/remote"
	remotefixtures "github.com/openfga/datagate/pkg/testfixtures/remote"
)

func TestCollectionFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.session(nil)

	tests := []struct {
		name     string
		query    *CollectionQuery
		expected []string
	}{
		{name: "all", query: s.Collections(), expected: []string{"c1", "c2", "c3"}},
		{name: "ids", query: s.Collections().IDs([]string{"c2", "c3"}), expected: []string{"c2", "c3"}},
		{name: "excluded_ids", query: s.Collections().ExcludedIDs([]string{"c1"}), expected: []string{"c2", "c3"}},
		{name: "owner_ids", query: s.Collections().OwnerIDs([]string{"u2"}), expected: []string{"c2"}},
		{name: "group_codes", query: s.Collections().GroupCodes([]string{"g2"}), expected: []string{"c2", "c3"}},
		{name: "like_is_case_insensitive", query: s.Collections().Like("CLI"), expected: []string{"c1"}},
		{name: "inactive", query: s.Collections().IsActive(false), expected: []string{"c3"}},
		{name: "active", query: s.Collections().IsActive(true), expected: []string{"c1", "c2"}},
		{
			name:     "with_datasets",
			query:    s.Collections().WithDatasets(s.Datasets().Formats([]string{"parquet"})),
			expected: []string{"c1"},
		},
		{
			name:     "with_datasets_many",
			query:    s.Collections().WithDatasets(s.Datasets().Formats([]string{"csv"})),
			expected: []string{"c1", "c2"},
		},
		{name: "empty_ids_is_false", query: s.Collections().IDs([]string{}), expected: []string{}},
		{
			name:     "false_subquery",
			query:    s.Collections().WithDatasets(s.Datasets().CollectionIDs([]string{})),
			expected: []string{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			records, err := test.query.Order(query.Asc("Id")).Collect(ctx)
			require.NoError(t, err)
			require.Equal(t, test.expected, collectionIDs(records))
		})
	}
}

func TestCollectionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		resolver *authz.StaticResolver
		flags    authz.Flags
		expected []string
	}{
		{
			name:     "permission",
			resolver: &authz.StaticResolver{Permissions: []string{PermissionReadCollections}},
			flags:    authz.Any,
			expected: []string{"c1", "c2", "c3"},
		},
		{
			name:     "context_and_owner_union",
			resolver: &authz.StaticResolver{PrincipalID: "u3", Affiliated: map[string][]string{"collection": {"c1"}}},
			flags:    authz.Context | authz.Owner,
			expected: []string{"c1", "c3"},
		},
		{
			name:     "group_codes",
			resolver: &authz.StaticResolver{GroupCodes: []string{"g2"}},
			flags:    authz.Context,
			expected: []string{"c2", "c3"},
		},
		{
			name:     "owner_only_ignores_context",
			resolver: &authz.StaticResolver{PrincipalID: "u1", GroupCodes: []string{"g2"}},
			flags:    authz.Owner,
			expected: []string{"c1"},
		},
		{
			name:     "nothing_granted",
			resolver: &authz.StaticResolver{},
			flags:    authz.Any,
			expected: []string{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			records, err := env.session(test.resolver).Collections().
				Authorize(test.flags).
				Order(query.Asc("Id")).
				Collect(ctx)
			require.NoError(t, err)
			require.Equal(t, test.expected, collectionIDs(records))
		})
	}
}

func TestCollectionWithoutDatastore(t *testing.T) {
	f := NewFactory()
	t.Cleanup(f.Close)

	_, err := f.Session(nil).Collections().Collect(context.Background())
	require.ErrorIs(t, err, query.ErrNoSource)
}

func TestCollectionBuilderDatasets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.session(nil)

	fields := fieldset.New("Id", "Datasets.Name")
	records, err := s.Collections().IDs([]string{"c1", "c2"}).Fields(fields).Order(query.Asc("Id")).Collect(ctx)
	require.NoError(t, err)

	models, err := s.CollectionBuilder(authz.None).Build(ctx, fields, records)
	require.NoError(t, err)
	require.Equal(t, []Collection{
		{ID: "c1", Datasets: []Dataset{{Name: "rainfall"}, {Name: "temperature"}}},
		{ID: "c2", Datasets: []Dataset{{Name: "households"}}},
	}, models)
}

func TestCollectionBuilderAuthorizesDatasets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.session(&authz.StaticResolver{PrincipalID: "u1"})

	fields := fieldset.New("Id", "Datasets.Id")
	records, err := s.Collections().IDs([]string{"c1"}).Fields(fields).Collect(ctx)
	require.NoError(t, err)

	models, err := s.CollectionBuilder(authz.Owner).Build(ctx, fields, records)
	require.NoError(t, err)
	require.Equal(t, []Collection{{ID: "c1", Datasets: []Dataset{{ID: "d1"}}}}, models)
}

func TestCollectionBuilderEmpty(t *testing.T) {
	env := newTestEnv(t)
	s := env.session(nil)

	models, err := s.CollectionBuilder(authz.None).Build(context.Background(), fieldset.New("Id"), nil)
	require.NoError(t, err)
	require.Empty(t, models)
}

func TestDatasetQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.session(nil)

	t.Run("in_collections", func(t *testing.T) {
		records, err := s.Datasets().
			InCollections(s.Collections().Like("census")).
			Order(query.Asc("Id")).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"d3"}, datasetIDs(records))
	})

	t.Run("largest_first", func(t *testing.T) {
		records, err := s.Datasets().Order(query.Desc("SizeBytes")).Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"d1", "d3", "d2"}, datasetIDs(records))
	})

	t.Run("count", func(t *testing.T) {
		n, err := s.Datasets().Formats([]string{"csv"}).Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("max_size", func(t *testing.T) {
		v, err := s.Datasets().CollectionIDs([]string{"c1"}).Max(ctx, "SizeBytes")
		require.NoError(t, err)
		require.EqualValues(t, 300, v)
	})

	t.Run("pluck_distinct_formats", func(t *testing.T) {
		values, err := s.Datasets().Distinct().Order(query.Asc("Format")).Pluck(ctx, "Format")
		require.NoError(t, err)
		require.Equal(t, []any{"csv", "parquet"}, values)
	})
}

func TestDatasetBuilderCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.session(nil)

	records, err := s.Datasets().
		IDs([]string{"d1", "d3"}).
		Fields(fieldset.New("Id", "Collection")).
		Order(query.Asc("Id")).
		Collect(ctx)
	require.NoError(t, err)

	t.Run("id_only_uses_placeholders", func(t *testing.T) {
		models, err := s.DatasetBuilder(authz.None).Build(ctx, fieldset.New("Id", "Collection.Id"), records)
		require.NoError(t, err)
		require.Equal(t, []Dataset{
			{ID: "d1", Collection: &Collection{ID: "c1"}},
			{ID: "d3", Collection: &Collection{ID: "c2"}},
		}, models)
	})

	t.Run("other_fields_are_fetched", func(t *testing.T) {
		models, err := s.DatasetBuilder(authz.None).Build(ctx, fieldset.New("Id", "Collection.Name"), records)
		require.NoError(t, err)
		require.Equal(t, []Dataset{
			{ID: "d1", Collection: &Collection{Name: "Climate"}},
			{ID: "d3", Collection: &Collection{Name: "Census"}},
		}, models)
	})

	t.Run("unauthorized_collection_is_omitted", func(t *testing.T) {
		s := env.session(&authz.StaticResolver{PrincipalID: "u1"})
		models, err := s.DatasetBuilder(authz.Owner).Build(ctx, fieldset.New("Id", "Collection.Name"), records)
		require.NoError(t, err)
		require.Equal(t, []Dataset{
			{ID: "d1", Collection: &Collection{Name: "Climate"}},
			{ID: "d3"},
		}, models)
	})
}

func TestDatasetBuilderWorkflowRuns(t *testing.T) {
	for _, parallelism := range []int{1, 2} {
		env := newTestEnv(t, WithParallelism(parallelism))
		ctx := context.Background()
		s := env.session(nil)

		records, err := s.Datasets().
			IDs([]string{"d1", "d2"}).
			Fields(fieldset.New("Id", "Collection")).
			Order(query.Asc("Id")).
			Collect(ctx)
		require.NoError(t, err)

		fields := fieldset.New("Id", "WorkflowRuns.Name", "Collection.Id")
		models, err := s.DatasetBuilder(authz.None).Build(ctx, fields, records)
		require.NoError(t, err)
		require.Equal(t, []Dataset{
			{
				ID:           "d1",
				Collection:   &Collection{ID: "c1"},
				WorkflowRuns: []WorkflowRun{{Name: "backfill"}, {Name: "Nightly ingest"}},
			},
			{
				ID:           "d2",
				Collection:   &Collection{ID: "c1"},
				WorkflowRuns: []WorkflowRun{{Name: "Validate"}},
			},
		}, models)

		require.Equal(t, 1, env.orchestrator.Calls())
		sent := env.orchestrator.Last()
		require.Equal(t, []string{"d1", "d2"}, sent["datasetId"])
		require.Equal(t, "-StartedAt", sent.Get("order"))
	}
}

func TestWorkflowRunQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("native", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).WorkflowRuns().
			DatasetIDs([]string{"d1"}).
			Statuses([]string{"failed"}).
			Order(query.Asc("StartedAt")).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"r2"}, runIDs(records))

		sent := env.orchestrator.Last()
		require.Equal(t, "failed", sent.Get("status"))
		require.Equal(t, "StartedAt", sent.Get("order"))
	})

	t.Run("native_paging_is_forwarded", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).WorkflowRuns().
			Order(query.Desc("StartedAt")).
			Page(1, 2).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"r3", "r2"}, runIDs(records))

		sent := env.orchestrator.Last()
		require.Equal(t, "1", sent.Get("offset"))
		require.Equal(t, "2", sent.Get("limit"))
	})

	t.Run("in_memory_statuses_order_and_paging", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).WorkflowRuns().
			Statuses([]string{"succeeded", "running"}).
			Order(query.Asc("Name")).
			Page(1, 1).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"r3"}, runIDs(records))

		sent := env.orchestrator.Last()
		require.Empty(t, sent.Get("status"))
		require.Empty(t, sent.Get("offset"))
		require.Empty(t, sent.Get("limit"))
	})

	t.Run("in_memory_like_and_exclusion", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).WorkflowRuns().
			Like("NIGHTLY").
			ExcludedIDs([]string{"r4"}).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"r1"}, runIDs(records))
	})

	t.Run("in_memory_count", func(t *testing.T) {
		env := newTestEnv(t)
		n, err := env.session(nil).WorkflowRuns().Statuses([]string{"succeeded", "failed"}).Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("native_count", func(t *testing.T) {
		env := newTestEnv(t)
		n, err := env.session(nil).WorkflowRuns().Statuses([]string{"succeeded"}).Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.Equal(t, []string{"/runs/count"}, env.orchestrator.Paths())
	})

	t.Run("owner_scope_is_evaluated_in_memory", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(&authz.StaticResolver{PrincipalID: "u1"}).WorkflowRuns().
			Authorize(authz.Owner).
			Order(query.Asc("Id")).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"r1", "r3"}, runIDs(records))
	})

	t.Run("pluck_rejected_in_memory", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.session(nil).WorkflowRuns().Like("x").Pluck(ctx, "Id")

		var invalid *query.InvalidOperationError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, "Pluck", invalid.Op)
		require.Zero(t, env.orchestrator.Calls())
	})

	t.Run("pluck_native", func(t *testing.T) {
		env := newTestEnv(t)
		values, err := env.session(nil).WorkflowRuns().DatasetIDs([]string{"d1"}).Pluck(ctx, "Id")
		require.NoError(t, err)
		require.ElementsMatch(t, []any{"r1", "r2"}, values)
	})

	t.Run("false_query_skips_the_orchestrator", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).WorkflowRuns().IDs([]string{}).Collect(ctx)
		require.NoError(t, err)
		require.Empty(t, records)
		require.Zero(t, env.orchestrator.Calls())
	})
}

func TestWorkflowRunQueryFault(t *testing.T) {
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	f := NewFactory(WithOrchestrator(remotefixtures.NewClient(t, "orchestrator", failing)))
	t.Cleanup(f.Close)

	_, err := f.Session(nil).WorkflowRuns().Collect(context.Background())
	require.ErrorIs(t, err, remote.ErrUnderpinningService)

	var fault *remote.UnderpinningServiceError
	require.ErrorAs(t, err, &fault)
	require.Equal(t, http.StatusServiceUnavailable, fault.StatusCode)
}

func TestWorkflowRunBuilderDataset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.session(nil)

	records, err := s.WorkflowRuns().IDs([]string{"r1", "r4"}).Order(query.Asc("Id")).Collect(ctx)
	require.NoError(t, err)

	models, err := s.WorkflowRunBuilder(authz.None).Build(ctx, fieldset.New("Id", "Status", "Dataset.Name"), records)
	require.NoError(t, err)
	require.Equal(t, []WorkflowRun{
		{ID: "r1", Status: "succeeded", Dataset: &Dataset{Name: "rainfall"}},
		{ID: "r4", Status: "succeeded", Dataset: &Dataset{Name: "households"}},
	}, models)
}

func TestRunByIDCache(t *testing.T) {
	ctx := context.Background()

	t.Run("uncached", func(t *testing.T) {
		env := newTestEnv(t)
		for range 2 {
			run, found, err := env.factory.RunByID().ByID(ctx, "r1")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "Nightly ingest", run.Name)
		}
		require.Equal(t, 2, env.orchestrator.Calls())
	})

	t.Run("cached", func(t *testing.T) {
		env := newTestEnv(t, WithRunCache(16, time.Minute))
		for range 2 {
			_, found, err := env.factory.RunByID().ByID(ctx, "r1")
			require.NoError(t, err)
			require.True(t, found)
		}
		require.Equal(t, 1, env.orchestrator.Calls())
	})

	t.Run("absent", func(t *testing.T) {
		env := newTestEnv(t, WithRunCache(16, time.Minute))
		_, found, err := env.factory.RunByID().ByID(ctx, "missing")
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestGroupMembershipQuery(t *testing.T) {
	ctx := context.Background()
	byGroupThenUser := query.Ordering{{Field: "GroupCode"}, {Field: "UserId"}}

	t.Run("roles_in_memory", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).GroupMemberships().
			Roles([]string{"owner"}).
			Order(byGroupThenUser).
			Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []GroupMembershipRecord{seededMemberships[0], seededMemberships[2]}, stripJoined(records))
	})

	t.Run("user_ids_are_forwarded", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).GroupMemberships().UserIDs([]string{"u2"}).Order(byGroupThenUser).Collect(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, []string{"u2"}, env.directory.Last()["userId"])
	})

	t.Run("excluded_users", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).GroupMemberships().
			GroupCodes([]string{"g2"}).
			ExcludedUserIDs([]string{"u2"}).
			Collect(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, "u3", records[0].UserID)
	})

	t.Run("scope_admits_groups_and_own_memberships", func(t *testing.T) {
		env := newTestEnv(t)
		resolver := &authz.StaticResolver{PrincipalID: "u3", GroupCodes: []string{"g1"}}
		records, err := env.session(resolver).GroupMemberships().
			Authorize(authz.Context | authz.Owner).
			Order(byGroupThenUser).
			Collect(ctx)
		require.NoError(t, err)

		var got [][2]string
		for _, r := range records {
			got = append(got, [2]string{r.GroupCode, r.UserID})
		}
		require.Equal(t, [][2]string{{"g1", "u1"}, {"g1", "u2"}, {"g2", "u3"}}, got)
	})

	t.Run("empty_roles_is_false", func(t *testing.T) {
		env := newTestEnv(t)
		records, err := env.session(nil).GroupMemberships().Roles([]string{}).Collect(ctx)
		require.NoError(t, err)
		require.Empty(t, records)
		require.Zero(t, env.directory.Calls())
	})
}

func TestGroupMembershipBuilder(t *testing.T) {
	env := newTestEnv(t)

	models, err := env.session(nil).GroupMembershipBuilder().Build(context.Background(),
		fieldset.New("UserId", "Role"), seededMemberships[:2])
	require.NoError(t, err)
	require.Equal(t, []GroupMembership{
		{UserID: "u1", Role: "owner"},
		{UserID: "u2", Role: "member"},
	}, models)
}

// stripJoined normalizes decoded timestamps so records compare with the seed.
func stripJoined(records []GroupMembershipRecord) []GroupMembershipRecord {
	out := make([]GroupMembershipRecord, len(records))
	for i, r := range records {
		r.JoinedAt = r.JoinedAt.UTC()
		out[i] = r
	}
	return out
}
