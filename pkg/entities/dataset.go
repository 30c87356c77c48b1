package entities

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/builder"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
)

const PermissionReadDatasets = "datasets.read"

// DatasetRecord is a row of the dataset table.
type DatasetRecord struct {
	ID           string
	CollectionID string
	Name         string
	Format       string
	OwnerID      string
	GroupCode    string
	SizeBytes    int64
	CreatedAt    time.Time
}

var datasetTable = &sqlcommon.Table[DatasetRecord]{
	Name: "dataset",
	Key:  "id",
	Columns: map[string]string{
		"Id":           "id",
		"CollectionId": "collection_id",
		"Collection":   "collection_id",
		"Name":         "name",
		"Format":       "format",
		"OwnerId":      "owner_id",
		"GroupCode":    "group_code",
		"SizeBytes":    "size_bytes",
		"CreatedAt":    "created_at",
	},
	Bind: func(r *DatasetRecord, column string) any {
		switch column {
		case "id":
			return &r.ID
		case "collection_id":
			return &r.CollectionID
		case "name":
			return &r.Name
		case "format":
			return &r.Format
		case "owner_id":
			return &r.OwnerID
		case "group_code":
			return &r.GroupCode
		case "size_bytes":
			return &r.SizeBytes
		case "created_at":
			return &r.CreatedAt
		}
		return nil
	},
	OwnerColumn: "owner_id",
	GroupColumn: "group_code",
}

// DatasetQuery reads datasets from the relational store.
type DatasetQuery struct {
	*query.Query[*DatasetQuery, DatasetRecord]

	ids           []string
	excludedIDs   []string
	collectionIDs []string
	formats       []string
	ownerIDs      []string
	like          *string
}

func newDatasetQuery(ds *sqlcommon.Datastore, opts ...query.Option) *DatasetQuery {
	q := &DatasetQuery{}
	var src query.Source[DatasetRecord]
	if ds != nil {
		src = sqlcommon.NewSource(ds, datasetTable, q.filter)
	}
	q.Query = query.New[*DatasetQuery, DatasetRecord](q, q, src, opts...)
	return q
}

func (q *DatasetQuery) EntityName() string { return "dataset" }

func (q *DatasetQuery) Policy() authz.Policy {
	return authz.Policy{Permission: PermissionReadDatasets, Kind: "dataset", UseGroupCodes: true}
}

func (q *DatasetQuery) IsFalseQuery() bool {
	return isSetEmpty(q.ids) || isSetEmpty(q.collectionIDs) || isSetEmpty(q.formats) || isSetEmpty(q.ownerIDs)
}

func (q *DatasetQuery) IDs(ids []string) *DatasetQuery {
	q.ids = ids
	return q
}

func (q *DatasetQuery) ExcludedIDs(ids []string) *DatasetQuery {
	q.excludedIDs = ids
	return q
}

func (q *DatasetQuery) CollectionIDs(ids []string) *DatasetQuery {
	q.collectionIDs = ids
	return q
}

func (q *DatasetQuery) Formats(formats []string) *DatasetQuery {
	q.formats = formats
	return q
}

func (q *DatasetQuery) OwnerIDs(ids []string) *DatasetQuery {
	q.ownerIDs = ids
	return q
}

// Like matches names containing s, case-insensitively.
func (q *DatasetQuery) Like(s string) *DatasetQuery {
	q.like = &s
	return q
}

// InCollections restricts the query to datasets of collections matched by sub.
func (q *DatasetQuery) InCollections(sub *CollectionQuery) *DatasetQuery {
	return q.Bind("CollectionId", sub, "Id")
}

func (q *DatasetQuery) filter() []sq.Sqlizer {
	var conds []sq.Sqlizer
	if q.ids != nil {
		conds = append(conds, sq.Eq{"id": q.ids})
	}
	if len(q.excludedIDs) > 0 {
		conds = append(conds, sq.NotEq{"id": q.excludedIDs})
	}
	if q.collectionIDs != nil {
		conds = append(conds, sq.Eq{"collection_id": q.collectionIDs})
	}
	if q.formats != nil {
		conds = append(conds, sq.Eq{"format": q.formats})
	}
	if q.ownerIDs != nil {
		conds = append(conds, sq.Eq{"owner_id": q.ownerIDs})
	}
	if q.like != nil {
		conds = append(conds, likeExpr("name", *q.like))
	}
	return conds
}

// DatasetBuilder shapes dataset records, hydrating the Collection and WorkflowRuns
// relations.
type DatasetBuilder struct {
	session *Session
	flags   authz.Flags
}

func (b *DatasetBuilder) Build(ctx context.Context, fields *fieldset.FieldSet, records []DatasetRecord) ([]Dataset, error) {
	return builder.Func[Dataset, DatasetRecord](b.build).Build(ctx, fields, records)
}

func (b *DatasetBuilder) collectionRelation() builder.ByForeignKey[DatasetRecord, CollectionRecord, Collection] {
	return builder.ByForeignKey[DatasetRecord, CollectionRecord, Collection]{
		Field:       "Collection",
		ForeignKey:  func(d DatasetRecord) (string, bool) { return d.CollectionID, d.CollectionID != "" },
		Key:         func(c CollectionRecord) string { return c.ID },
		IDField:     "Id",
		Placeholder: func(id string) Collection { return Collection{ID: id} },
		Fetch: func(ctx context.Context, keys []string, fields *fieldset.FieldSet) ([]CollectionRecord, error) {
			return b.session.Collections().IDs(keys).Fields(fields).Authorize(b.flags).Collect(ctx)
		},
		Builder: b.session.CollectionBuilder(b.flags),
	}
}

func (b *DatasetBuilder) runsRelation() builder.ByMasterKey[DatasetRecord, WorkflowRunRecord, WorkflowRun] {
	return builder.ByMasterKey[DatasetRecord, WorkflowRunRecord, WorkflowRun]{
		Field:          "WorkflowRuns",
		ParentKey:      func(d DatasetRecord) string { return d.ID },
		MasterKey:      func(r WorkflowRunRecord) string { return r.DatasetID },
		MasterKeyField: "DatasetId",
		Fetch: func(ctx context.Context, keys []string, fields *fieldset.FieldSet) ([]WorkflowRunRecord, error) {
			return b.session.WorkflowRuns().
				DatasetIDs(keys).
				Fields(fields).
				Order(query.Desc("StartedAt")).
				Authorize(b.flags).
				Collect(ctx)
		},
		Builder: b.session.WorkflowRunBuilder(b.flags),
	}
}

func (b *DatasetBuilder) build(ctx context.Context, fields *fieldset.FieldSet, records []DatasetRecord) ([]Dataset, error) {
	collectionRel := b.collectionRelation()
	runsRel := b.runsRelation()

	var (
		collections map[string]Collection
		runs        map[string][]WorkflowRun
	)
	err := builder.Hydrate(ctx, b.session.parallelism,
		func(ctx context.Context) error {
			var err error
			collections, err = collectionRel.Resolve(ctx, fields, records)
			return err
		},
		func(ctx context.Context) error {
			var err error
			runs, err = runsRel.Resolve(ctx, fields, records)
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	out := make([]Dataset, len(records))
	for i, r := range records {
		m := &out[i]
		builder.Set(fields, "Id", &m.ID, r.ID)
		builder.Set(fields, "CollectionId", &m.CollectionID, r.CollectionID)
		builder.Set(fields, "Name", &m.Name, r.Name)
		builder.Set(fields, "Format", &m.Format, r.Format)
		builder.Set(fields, "OwnerId", &m.OwnerID, r.OwnerID)
		builder.Set(fields, "GroupCode", &m.GroupCode, r.GroupCode)
		builder.Set(fields, "SizeBytes", &m.SizeBytes, ptr(r.SizeBytes))
		builder.Set(fields, "CreatedAt", &m.CreatedAt, ptr(r.CreatedAt))
		if c, ok := collectionRel.Lookup(collections, r); ok {
			m.Collection = &c
		}
		if runs != nil {
			m.WorkflowRuns = runs[r.ID]
		}
	}
	return out, nil
}
