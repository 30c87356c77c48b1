package gateway

import (
	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/query"
)

// Common holds the parameters shared by every paged lookup.
type Common struct {
	Fields   *fieldset.FieldSet
	Ordering query.Ordering
	Paging   *query.Paging
	Flags    authz.Flags
	// WithCount requests the exact number of matches regardless of paging.
	WithCount bool
}

func (c *Common) validate() error {
	if c.Fields.IsEmpty() {
		return invalid("Fields", "must not be empty")
	}
	if c.Paging != nil {
		if c.Paging.Offset < 0 || c.Paging.Size < 0 {
			return invalid("Paging", "must not be negative")
		}
		if !c.Paging.IsEmpty() && c.Ordering.IsEmpty() {
			return invalid("Ordering", "is required when paging")
		}
	}
	for _, item := range c.Ordering {
		if item.Field == "" {
			return invalid("Ordering", "must not contain empty fields")
		}
	}
	return nil
}

// notEmptyIfSet rejects exclusion lists that are present but empty. An empty
// inclusion list is accepted and matches nothing.
func notEmptyIfSet(field string, values []string) error {
	if values != nil && len(values) == 0 {
		return invalid(field, "must not be empty when set")
	}
	return nil
}

type CollectionLookup struct {
	Common

	IDs         []string
	ExcludedIDs []string
	OwnerIDs    []string
	GroupCodes  []string
	Like        string
	IsActive    *bool
	// WithDatasets restricts the result to collections holding at least one
	// dataset matched by the nested lookup's filters.
	WithDatasets *DatasetFilter
}

func (l *CollectionLookup) Validate() error {
	if err := l.validate(); err != nil {
		return err
	}
	if err := notEmptyIfSet("ExcludedIDs", l.ExcludedIDs); err != nil {
		return err
	}
	if l.WithDatasets != nil {
		return l.WithDatasets.validate("WithDatasets.")
	}
	return nil
}

// DatasetFilter is the filter part of a dataset lookup, reused by nested lookups.
type DatasetFilter struct {
	IDs           []string
	ExcludedIDs   []string
	CollectionIDs []string
	Formats       []string
	OwnerIDs      []string
	Like          string
}

func (f *DatasetFilter) validate(prefix string) error {
	return notEmptyIfSet(prefix+"ExcludedIDs", f.ExcludedIDs)
}

type DatasetLookup struct {
	Common
	DatasetFilter

	// InCollectionsLike restricts the result to collections whose name matches.
	InCollectionsLike string
}

func (l *DatasetLookup) Validate() error {
	if err := l.Common.validate(); err != nil {
		return err
	}
	return l.DatasetFilter.validate("")
}

type WorkflowRunLookup struct {
	Common

	IDs         []string
	ExcludedIDs []string
	DatasetIDs  []string
	Statuses    []string
	Like        string
}

func (l *WorkflowRunLookup) Validate() error {
	if err := l.validate(); err != nil {
		return err
	}
	return notEmptyIfSet("ExcludedIDs", l.ExcludedIDs)
}

type GroupMembershipLookup struct {
	Common

	GroupCodes      []string
	UserIDs         []string
	Roles           []string
	ExcludedUserIDs []string
}

func (l *GroupMembershipLookup) Validate() error {
	if err := l.validate(); err != nil {
		return err
	}
	return notEmptyIfSet("ExcludedUserIDs", l.ExcludedUserIDs)
}

// WorkflowRunByID fetches a single run.
type WorkflowRunByID struct {
	ID     string
	Fields *fieldset.FieldSet
	Flags  authz.Flags
}

func (l *WorkflowRunByID) Validate() error {
	if l.ID == "" {
		return invalid("ID", "is required")
	}
	if l.Fields.IsEmpty() {
		return invalid("Fields", "must not be empty")
	}
	return nil
}
