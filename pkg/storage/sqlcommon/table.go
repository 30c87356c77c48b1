package sqlcommon

import (
	"strings"

	"github.com/openfga/datagate/pkg/fieldset"
)

// Table maps an entity's output fields to the columns of one relational table.
type Table[E any] struct {
	Name string
	// Key is the primary key column. It is always projected.
	Key string
	// Columns maps a top level output field to its column. Relation fields map to
	// their foreign key column, e.g. "Collection" to "collection_id".
	Columns map[string]string
	// Bind returns the scan destination of column within rec.
	Bind func(rec *E, column string) any

	// Authorization columns. Empty columns never match a scope predicate except
	// IDColumn, which defaults to Key.
	IDColumn    string
	OwnerColumn string
	GroupColumn string
}

// Column resolves an output field to its column. Nested paths resolve through their
// first segment.
func (t *Table[E]) Column(field string) (string, bool) {
	col, ok := t.Columns[topLevel(field)]
	return col, ok
}

// Project returns the key column followed by the columns needed for fields, without
// duplicates.
func (t *Table[E]) Project(fields *fieldset.FieldSet) []string {
	columns := []string{t.Key}
	seen := map[string]struct{}{t.Key: {}}
	for _, field := range fields.Fields() {
		col, ok := t.Column(field)
		if !ok {
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		columns = append(columns, col)
	}
	return columns
}

func (t *Table[E]) idColumn() string {
	if t.IDColumn != "" {
		return t.IDColumn
	}
	return t.Key
}

func topLevel(field string) string {
	if i := strings.IndexAny(field, ".["); i >= 0 {
		return field[:i]
	}
	return field
}
