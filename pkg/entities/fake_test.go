package entities

import (
	"testing"
	"time"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
	remotefixtures "github.com/openfga/datagate/pkg/testfixtures/remote"
	fixtures "github.com/openfga/datagate/pkg/testfixtures/storage"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

var seededRuns = []WorkflowRunRecord{
	{ID: "r1", DatasetID: "d1", Name: "Nightly ingest", Status: "succeeded", OwnerID: "u1", StartedAt: t0.Add(1 * time.Hour)},
	{ID: "r2", DatasetID: "d1", Name: "backfill", Status: "failed", OwnerID: "u2", StartedAt: t0.Add(2 * time.Hour)},
	{ID: "r3", DatasetID: "d2", Name: "Validate", Status: "running", OwnerID: "u1", StartedAt: t0.Add(3 * time.Hour)},
	{ID: "r4", DatasetID: "d3", Name: "nightly export", Status: "succeeded", OwnerID: "u3", StartedAt: t0.Add(4 * time.Hour)},
}

var seededMemberships = []GroupMembershipRecord{
	{GroupCode: "g1", UserID: "u1", Role: "owner", JoinedAt: t0},
	{GroupCode: "g1", UserID: "u2", Role: "member", JoinedAt: t0.Add(time.Hour)},
	{GroupCode: "g2", UserID: "u2", Role: "owner", JoinedAt: t0.Add(2 * time.Hour)},
	{GroupCode: "g2", UserID: "u3", Role: "member", JoinedAt: t0.Add(3 * time.Hour)},
}

func newFakeOrchestrator() *remotefixtures.Service[WorkflowRunRecord] {
	return &remotefixtures.Service[WorkflowRunRecord]{
		Items: seededRuns,
		Filters: map[string]func(WorkflowRunRecord, string) bool{
			"id":        func(r WorkflowRunRecord, v string) bool { return r.ID == v },
			"datasetId": func(r WorkflowRunRecord, v string) bool { return r.DatasetID == v },
			"status":    func(r WorkflowRunRecord, v string) bool { return r.Status == v },
		},
		Key: func(r WorkflowRunRecord) string { return r.ID },
		Orderings: map[string]func(a, b WorkflowRunRecord) int{
			"StartedAt":  func(a, b WorkflowRunRecord) int { return a.StartedAt.Compare(b.StartedAt) },
			"-StartedAt": func(a, b WorkflowRunRecord) int { return b.StartedAt.Compare(a.StartedAt) },
		},
	}
}

func newFakeDirectory() *remotefixtures.Service[GroupMembershipRecord] {
	return &remotefixtures.Service[GroupMembershipRecord]{
		Items: seededMemberships,
		Filters: map[string]func(GroupMembershipRecord, string) bool{
			"groupCode": func(m GroupMembershipRecord, v string) bool { return m.GroupCode == v },
			"userId":    func(m GroupMembershipRecord, v string) bool { return m.UserID == v },
		},
	}
}

func seedDatastore(t *testing.T) *sqlcommon.Datastore {
	t.Helper()

	ds := fixtures.NewSqliteDatastore(t)
	fixtures.InsertCollections(t, ds,
		fixtures.CollectionRow{ID: "c1", Name: "Climate", Description: "weather data", OwnerID: "u1", GroupCode: "g1"},
		fixtures.CollectionRow{ID: "c2", Name: "Census", OwnerID: "u2", GroupCode: "g2"},
		fixtures.CollectionRow{ID: "c3", Name: "Archive", OwnerID: "u3", GroupCode: "g2", Inactive: true},
	)
	fixtures.InsertDatasets(t, ds,
		fixtures.DatasetRow{ID: "d1", CollectionID: "c1", Name: "rainfall", Format: "csv", OwnerID: "u1", GroupCode: "g1", SizeBytes: 300},
		fixtures.DatasetRow{ID: "d2", CollectionID: "c1", Name: "temperature", Format: "parquet", OwnerID: "u2", GroupCode: "g1", SizeBytes: 100},
		fixtures.DatasetRow{ID: "d3", CollectionID: "c2", Name: "households", Format: "csv", OwnerID: "u2", GroupCode: "g2", SizeBytes: 200},
	)
	return ds
}

type testEnv struct {
	factory      *Factory
	orchestrator *remotefixtures.Service[WorkflowRunRecord]
	directory    *remotefixtures.Service[GroupMembershipRecord]
}

func newTestEnv(t *testing.T, opts ...FactoryOption) *testEnv {
	t.Helper()

	env := &testEnv{
		orchestrator: newFakeOrchestrator(),
		directory:    newFakeDirectory(),
	}
	opts = append([]FactoryOption{
		WithDatastore(seedDatastore(t)),
		WithOrchestrator(remotefixtures.NewClient(t, "orchestrator", env.orchestrator)),
		WithDirectory(remotefixtures.NewClient(t, "directory", env.directory)),
	}, opts...)
	env.factory = NewFactory(opts...)
	t.Cleanup(env.factory.Close)
	return env
}

// session returns a request session authorized as resolver; nil authorizes nothing
// but authz.None.
func (e *testEnv) session(resolver authz.Resolver) *Session {
	if resolver == nil {
		return e.factory.Session(nil)
	}
	return e.factory.Session(authz.NewAuthorizer(resolver))
}

func collectionIDs(records []CollectionRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func datasetIDs(records []DatasetRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func runIDs(records []WorkflowRunRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
