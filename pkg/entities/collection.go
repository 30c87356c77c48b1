package entities

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/builder"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
)

const (
	PermissionReadCollections  = "collections.read"
	PermissionAuditCollections = "collections.audit"
)

// CollectionRecord is a row of the collection table.
type CollectionRecord struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	GroupCode   string
	IsActive    bool
	CreatedAt   time.Time
}

var collectionTable = &sqlcommon.Table[CollectionRecord]{
	Name: "collection",
	Key:  "id",
	Columns: map[string]string{
		"Id":          "id",
		"Name":        "name",
		"Description": "description",
		"OwnerId":     "owner_id",
		"GroupCode":   "group_code",
		"IsActive":    "is_active",
		"CreatedAt":   "created_at",
	},
	Bind: func(r *CollectionRecord, column string) any {
		switch column {
		case "id":
			return &r.ID
		case "name":
			return &r.Name
		case "description":
			return &r.Description
		case "owner_id":
			return &r.OwnerID
		case "group_code":
			return &r.GroupCode
		case "is_active":
			return &r.IsActive
		case "created_at":
			return &r.CreatedAt
		}
		return nil
	},
	OwnerColumn: "owner_id",
	GroupColumn: "group_code",
}

// CollectionQuery reads collections from the relational store.
type CollectionQuery struct {
	*query.Query[*CollectionQuery, CollectionRecord]

	ids         []string
	excludedIDs []string
	ownerIDs    []string
	groupCodes  []string
	like        *string
	isActive    *bool
}

func newCollectionQuery(ds *sqlcommon.Datastore, opts ...query.Option) *CollectionQuery {
	q := &CollectionQuery{}
	var src query.Source[CollectionRecord]
	if ds != nil {
		src = sqlcommon.NewSource(ds, collectionTable, q.filter)
	}
	q.Query = query.New[*CollectionQuery, CollectionRecord](q, q, src, opts...)
	return q
}

func (q *CollectionQuery) EntityName() string { return "collection" }

func (q *CollectionQuery) Policy() authz.Policy {
	return authz.Policy{Permission: PermissionReadCollections, Kind: "collection", UseGroupCodes: true}
}

func (q *CollectionQuery) IsFalseQuery() bool {
	return isSetEmpty(q.ids) || isSetEmpty(q.ownerIDs) || isSetEmpty(q.groupCodes)
}

func (q *CollectionQuery) IDs(ids []string) *CollectionQuery {
	q.ids = ids
	return q
}

func (q *CollectionQuery) ExcludedIDs(ids []string) *CollectionQuery {
	q.excludedIDs = ids
	return q
}

func (q *CollectionQuery) OwnerIDs(ids []string) *CollectionQuery {
	q.ownerIDs = ids
	return q
}

func (q *CollectionQuery) GroupCodes(codes []string) *CollectionQuery {
	q.groupCodes = codes
	return q
}

// Like matches names containing s, case-insensitively.
func (q *CollectionQuery) Like(s string) *CollectionQuery {
	q.like = &s
	return q
}

func (q *CollectionQuery) IsActive(active bool) *CollectionQuery {
	q.isActive = &active
	return q
}

// WithDatasets restricts the query to collections owning a dataset matched by sub.
func (q *CollectionQuery) WithDatasets(sub *DatasetQuery) *CollectionQuery {
	return q.Bind("Id", sub, "CollectionId")
}

func (q *CollectionQuery) filter() []sq.Sqlizer {
	var conds []sq.Sqlizer
	if q.ids != nil {
		conds = append(conds, sq.Eq{"id": q.ids})
	}
	if len(q.excludedIDs) > 0 {
		conds = append(conds, sq.NotEq{"id": q.excludedIDs})
	}
	if q.ownerIDs != nil {
		conds = append(conds, sq.Eq{"owner_id": q.ownerIDs})
	}
	if q.groupCodes != nil {
		conds = append(conds, sq.Eq{"group_code": q.groupCodes})
	}
	if q.like != nil {
		conds = append(conds, likeExpr("name", *q.like))
	}
	if q.isActive != nil {
		conds = append(conds, sq.Eq{"is_active": *q.isActive})
	}
	return conds
}

func likeExpr(column, s string) sq.Sqlizer {
	return sq.Expr("LOWER("+column+") LIKE ?", "%"+strings.ToLower(s)+"%")
}

// CollectionBuilder shapes collection records. Nested queries are authorized with
// the builder's flags.
type CollectionBuilder struct {
	session *Session
	flags   authz.Flags
}

func (b *CollectionBuilder) Build(ctx context.Context, fields *fieldset.FieldSet, records []CollectionRecord) ([]Collection, error) {
	return builder.Func[Collection, CollectionRecord](b.build).Build(ctx, fields, records)
}

func (b *CollectionBuilder) build(ctx context.Context, fields *fieldset.FieldSet, records []CollectionRecord) ([]Collection, error) {
	datasets := builder.ByMasterKey[CollectionRecord, DatasetRecord, Dataset]{
		Field:          "Datasets",
		ParentKey:      func(r CollectionRecord) string { return r.ID },
		MasterKey:      func(d DatasetRecord) string { return d.CollectionID },
		MasterKeyField: "CollectionId",
		Fetch: func(ctx context.Context, keys []string, fields *fieldset.FieldSet) ([]DatasetRecord, error) {
			return b.session.Datasets().
				CollectionIDs(keys).
				Fields(fields).
				Order(query.Asc("Id")).
				Authorize(b.flags).
				Collect(ctx)
		},
		Builder: b.session.DatasetBuilder(b.flags),
	}

	children, err := datasets.Resolve(ctx, fields, records)
	if err != nil {
		return nil, err
	}

	out := make([]Collection, len(records))
	for i, r := range records {
		m := &out[i]
		builder.Set(fields, "Id", &m.ID, r.ID)
		builder.Set(fields, "Name", &m.Name, r.Name)
		builder.Set(fields, "Description", &m.Description, r.Description)
		builder.Set(fields, "OwnerId", &m.OwnerID, r.OwnerID)
		builder.Set(fields, "GroupCode", &m.GroupCode, r.GroupCode)
		builder.Set(fields, "IsActive", &m.IsActive, ptr(r.IsActive))
		builder.Set(fields, "CreatedAt", &m.CreatedAt, ptr(r.CreatedAt))
		if children != nil {
			m.Datasets = children[r.ID]
		}
	}
	return out, nil
}
