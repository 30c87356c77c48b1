// Package entities plugs concrete entities into the generic query and builder
// pipeline: their filters, column mappings, in-memory fallbacks and relations.
package entities

import (
	"time"
)

// Output models. Only requested fields are populated; everything else keeps its
// zero value and is omitted from JSON.

type Collection struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	OwnerID     string     `json:"ownerId,omitempty"`
	GroupCode   string     `json:"groupCode,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Datasets    []Dataset  `json:"datasets,omitempty"`
}

type Dataset struct {
	ID           string        `json:"id,omitempty"`
	CollectionID string        `json:"collectionId,omitempty"`
	Name         string        `json:"name,omitempty"`
	Format       string        `json:"format,omitempty"`
	OwnerID      string        `json:"ownerId,omitempty"`
	GroupCode    string        `json:"groupCode,omitempty"`
	SizeBytes    *int64        `json:"sizeBytes,omitempty"`
	CreatedAt    *time.Time    `json:"createdAt,omitempty"`
	Collection   *Collection   `json:"collection,omitempty"`
	WorkflowRuns []WorkflowRun `json:"workflowRuns,omitempty"`
}

type WorkflowRun struct {
	ID         string     `json:"id,omitempty"`
	DatasetID  string     `json:"datasetId,omitempty"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status,omitempty"`
	OwnerID    string     `json:"ownerId,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Dataset    *Dataset   `json:"dataset,omitempty"`
}

type GroupMembership struct {
	GroupCode string     `json:"groupCode,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Role      string     `json:"role,omitempty"`
	JoinedAt  *time.Time `json:"joinedAt,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

// isSetEmpty reports a filter that is set but holds nothing, which can match no row.
func isSetEmpty[T any](values []T) bool {
	return values != nil && len(values) == 0
}
