package builder

import (
	"context"

	"github.com/openfga/datagate/pkg/fieldset"
)

// Fetcher loads related records by key in a single call. fields is the projection
// the related builder needs.
type Fetcher[C any] func(ctx context.Context, keys []string, fields *fieldset.FieldSet) ([]C, error)

// ByMasterKey hydrates a one-to-many relation: each parent owns the children whose
// master key equals the parent key.
type ByMasterKey[P any, C any, M any] struct {
	// Field is the relation's output field, e.g. "Datasets".
	Field string
	// ParentKey returns the key of a parent record.
	ParentKey func(P) string
	// MasterKey returns the parent key a child record points to.
	MasterKey func(C) string
	// MasterKeyField is the child field holding the master key. It is added to the
	// fetch projection so children can be grouped, and is only built when requested.
	MasterKeyField string
	Fetch          Fetcher[C]
	Builder        Builder[M, C]
}

// Resolve fetches and builds the children of every parent with one fetch and one
// build. The map is nil when the relation was not requested.
func (r ByMasterKey[P, C, M]) Resolve(ctx context.Context, fields *fieldset.FieldSet, parents []P) (map[string][]M, error) {
	sub := fields.ExtractPrefixed(r.Field)
	if sub.IsEmpty() || len(parents) == 0 {
		return nil, nil
	}

	keys := distinct(parents, r.ParentKey)
	out := make(map[string][]M, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	children, err := r.Fetch(ctx, keys, sub.Ensure(r.MasterKeyField))
	if err != nil {
		return nil, err
	}

	models, err := r.Builder.Build(ctx, sub, children)
	if err != nil {
		return nil, err
	}

	for i, child := range children {
		if i >= len(models) {
			break
		}
		key := r.MasterKey(child)
		out[key] = append(out[key], models[i])
	}
	return out, nil
}

// ByForeignKey hydrates a many-to-one relation: each parent points to at most one
// related record through a foreign key.
type ByForeignKey[P any, C any, M any] struct {
	// Field is the relation's output field, e.g. "Collection".
	Field string
	// ForeignKey returns the related key of a parent, false when it has none.
	ForeignKey func(P) (string, bool)
	// Key returns the key of a related record.
	Key func(C) string
	// IDField is the related model's identifier field, e.g. "Id".
	IDField string
	// Placeholder builds a related model holding only its identifier.
	Placeholder func(id string) M
	Fetch       Fetcher[C]
	Builder     Builder[M, C]
}

// Resolve returns the related model for each foreign key with at most one fetch.
// When only IDField is requested, placeholders are returned without fetching. The
// map is nil when the relation was not requested.
func (r ByForeignKey[P, C, M]) Resolve(ctx context.Context, fields *fieldset.FieldSet, parents []P) (map[string]M, error) {
	sub := fields.ExtractPrefixed(r.Field)
	if sub.IsEmpty() || len(parents) == 0 {
		return nil, nil
	}

	keys := distinct(parents, func(p P) string {
		key, _ := r.ForeignKey(p)
		return key
	})
	out := make(map[string]M, len(keys))

	if !sub.HasOtherField(r.IDField) {
		for _, key := range keys {
			out[key] = r.Placeholder(key)
		}
		return out, nil
	}
	if len(keys) == 0 {
		return out, nil
	}

	related, err := r.Fetch(ctx, keys, sub)
	if err != nil {
		return nil, err
	}

	models, err := r.Builder.Build(ctx, sub, related)
	if err != nil {
		return nil, err
	}

	for i, rec := range related {
		if i >= len(models) {
			break
		}
		out[r.Key(rec)] = models[i]
	}
	return out, nil
}

// Lookup returns the related model of parent, if any.
func (r ByForeignKey[P, C, M]) Lookup(related map[string]M, parent P) (M, bool) {
	var zero M
	key, ok := r.ForeignKey(parent)
	if !ok || related == nil {
		return zero, false
	}
	m, ok := related[key]
	return m, ok
}

func distinct[T any](items []T, key func(T) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		k := key(item)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
