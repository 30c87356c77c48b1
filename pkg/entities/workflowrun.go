package entities

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/builder"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/remote"
)

const PermissionReadWorkflowRuns = "workflowruns.read"

// WorkflowRunRecord is a run as served by the workflow orchestrator.
type WorkflowRunRecord struct {
	ID         string     `json:"id"`
	DatasetID  string     `json:"datasetId"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	OwnerID    string     `json:"ownerId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
}

// WorkflowRunQuery reads runs from the orchestrator. The orchestrator filters by
// ids, dataset ids and a single status and orders by StartedAt only; everything
// else is evaluated in memory.
type WorkflowRunQuery struct {
	*query.Extended[*WorkflowRunQuery, WorkflowRunRecord]

	ids         []string
	excludedIDs []string
	datasetIDs  []string
	statuses    []string
	like        *string
}

func newWorkflowRunQuery(endpoint *remote.Endpoint[WorkflowRunRecord], opts ...query.Option) *WorkflowRunQuery {
	q := &WorkflowRunQuery{}
	var src query.Source[WorkflowRunRecord]
	if endpoint != nil {
		src = remote.NewSource(endpoint, q.params, workflowRunValue)
	}
	q.Extended = query.NewExtended[*WorkflowRunQuery, WorkflowRunRecord](q, q, q, src, opts...)
	return q
}

func (q *WorkflowRunQuery) EntityName() string { return "workflowrun" }

func (q *WorkflowRunQuery) Policy() authz.Policy {
	return authz.Policy{Permission: PermissionReadWorkflowRuns, Kind: "workflowrun"}
}

func (q *WorkflowRunQuery) IsFalseQuery() bool {
	return isSetEmpty(q.ids) || isSetEmpty(q.datasetIDs) || isSetEmpty(q.statuses)
}

func (q *WorkflowRunQuery) IDs(ids []string) *WorkflowRunQuery {
	q.ids = ids
	return q
}

func (q *WorkflowRunQuery) ExcludedIDs(ids []string) *WorkflowRunQuery {
	q.excludedIDs = ids
	return q
}

func (q *WorkflowRunQuery) DatasetIDs(ids []string) *WorkflowRunQuery {
	q.datasetIDs = ids
	return q
}

func (q *WorkflowRunQuery) Statuses(statuses []string) *WorkflowRunQuery {
	q.statuses = statuses
	return q
}

// Like matches names containing s, case-insensitively.
func (q *WorkflowRunQuery) Like(s string) *WorkflowRunQuery {
	q.like = &s
	return q
}

func (q *WorkflowRunQuery) params(*query.Statement) url.Values {
	params := url.Values{}
	for _, id := range q.ids {
		params.Add("id", id)
	}
	for _, id := range q.datasetIDs {
		params.Add("datasetId", id)
	}
	if len(q.statuses) == 1 {
		params.Set("status", q.statuses[0])
	}
	return params
}

func (q *WorkflowRunQuery) FilterInMemory(st *query.Statement) bool {
	return len(q.excludedIDs) > 0 || len(q.statuses) > 1 || q.like != nil || !st.Scope.All
}

func (q *WorkflowRunQuery) OrderInMemory(o query.Ordering) bool {
	return len(o) != 1 || o[0].Field != "StartedAt"
}

func (q *WorkflowRunQuery) Match(st *query.Statement, r WorkflowRunRecord) bool {
	if slices.Contains(q.excludedIDs, r.ID) {
		return false
	}
	if len(q.statuses) > 1 && !slices.Contains(q.statuses, r.Status) {
		return false
	}
	if q.like != nil && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(*q.like)) {
		return false
	}
	return st.Scope.Allows(r.ID, r.OwnerID)
}

func (q *WorkflowRunQuery) Compare(field string) (query.Comparator[WorkflowRunRecord], bool) {
	switch field {
	case "Id":
		return query.CompareBy(func(r WorkflowRunRecord) string { return r.ID }), true
	case "Name":
		return query.CompareBy(func(r WorkflowRunRecord) string { return r.Name }), true
	case "Status":
		return query.CompareBy(func(r WorkflowRunRecord) string { return r.Status }), true
	case "StartedAt":
		return query.CompareBy(func(r WorkflowRunRecord) int64 { return r.StartedAt.UnixNano() }), true
	}
	return nil, false
}

func (q *WorkflowRunQuery) RequiredFields() []string {
	return []string{"Id", "Name", "Status", "OwnerId"}
}

func workflowRunValue(r WorkflowRunRecord, field string) (any, bool) {
	switch field {
	case "Id":
		return r.ID, true
	case "DatasetId", "Dataset":
		return r.DatasetID, true
	case "Name":
		return r.Name, true
	case "Status":
		return r.Status, true
	case "OwnerId":
		return r.OwnerID, true
	case "StartedAt":
		return r.StartedAt, true
	}
	return nil, false
}

// WorkflowRunBuilder shapes run records, hydrating the Dataset relation.
type WorkflowRunBuilder struct {
	session *Session
	flags   authz.Flags
}

func (b *WorkflowRunBuilder) Build(ctx context.Context, fields *fieldset.FieldSet, records []WorkflowRunRecord) ([]WorkflowRun, error) {
	return builder.Func[WorkflowRun, WorkflowRunRecord](b.build).Build(ctx, fields, records)
}

func (b *WorkflowRunBuilder) build(ctx context.Context, fields *fieldset.FieldSet, records []WorkflowRunRecord) ([]WorkflowRun, error) {
	datasetRel := builder.ByForeignKey[WorkflowRunRecord, DatasetRecord, Dataset]{
		Field:       "Dataset",
		ForeignKey:  func(r WorkflowRunRecord) (string, bool) { return r.DatasetID, r.DatasetID != "" },
		Key:         func(d DatasetRecord) string { return d.ID },
		IDField:     "Id",
		Placeholder: func(id string) Dataset { return Dataset{ID: id} },
		Fetch: func(ctx context.Context, keys []string, fields *fieldset.FieldSet) ([]DatasetRecord, error) {
			return b.session.Datasets().IDs(keys).Fields(fields).Authorize(b.flags).Collect(ctx)
		},
		Builder: b.session.DatasetBuilder(b.flags),
	}

	datasets, err := datasetRel.Resolve(ctx, fields, records)
	if err != nil {
		return nil, err
	}

	out := make([]WorkflowRun, len(records))
	for i, r := range records {
		m := &out[i]
		builder.Set(fields, "Id", &m.ID, r.ID)
		builder.Set(fields, "DatasetId", &m.DatasetID, r.DatasetID)
		builder.Set(fields, "Name", &m.Name, r.Name)
		builder.Set(fields, "Status", &m.Status, r.Status)
		builder.Set(fields, "OwnerId", &m.OwnerID, r.OwnerID)
		builder.Set(fields, "StartedAt", &m.StartedAt, ptr(r.StartedAt))
		if fields.HasField("FinishedAt") && r.FinishedAt != nil {
			m.FinishedAt = ptr(*r.FinishedAt)
		}
		if d, ok := datasetRel.Lookup(datasets, r); ok {
			m.Dataset = &d
		}
	}
	return out, nil
}
