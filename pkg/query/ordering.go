package query

import (
	"cmp"
	"fmt"
	"strings"
)

// OrderItem orders by a single output field.
type OrderItem struct {
	Field      string
	Descending bool
}

func (o OrderItem) String() string {
	if o.Descending {
		return "-" + o.Field
	}
	return o.Field
}

// Ordering is an ordered list of sort keys. A nil Ordering is unset and a non-nil
// empty one is explicitly empty; neither requests a deterministic order.
type Ordering []OrderItem

// Asc and Desc build single key orderings.
func Asc(field string) Ordering  { return Ordering{{Field: field}} }
func Desc(field string) Ordering { return Ordering{{Field: field, Descending: true}} }

func (o Ordering) IsEmpty() bool {
	return len(o) == 0
}

// Fields returns the ordered field names without direction.
func (o Ordering) Fields() []string {
	out := make([]string, 0, len(o))
	for _, item := range o {
		out = append(out, item.Field)
	}
	return out
}

func (o Ordering) String() string {
	parts := make([]string, 0, len(o))
	for _, item := range o {
		parts = append(parts, item.String())
	}
	return strings.Join(parts, ",")
}

// ParseOrdering accepts items of the form "Name", "+Name" or "-Name". A nil input
// yields a nil Ordering.
func ParseOrdering(items []string) (Ordering, error) {
	if items == nil {
		return nil, nil
	}
	out := make(Ordering, 0, len(items))
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		desc := false
		switch {
		case strings.HasPrefix(item, "-"):
			desc = true
			item = item[1:]
		case strings.HasPrefix(item, "+"):
			item = item[1:]
		}
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("%w: empty order field in %q", ErrInvalidOrdering, raw)
		}
		out = append(out, OrderItem{Field: item, Descending: desc})
	}
	return out, nil
}

// Comparator compares two records by one field.
type Comparator[E any] func(a, b E) int

// CompareBy builds a Comparator from an accessor returning an ordered value.
func CompareBy[E any, V cmp.Ordered](accessor func(E) V) Comparator[E] {
	return func(a, b E) int {
		return cmp.Compare(accessor(a), accessor(b))
	}
}

// SortFunc chains the comparators for every ordering item; the first non-zero result
// wins. Fields without a comparator are skipped. It returns nil when nothing
// applies.
func SortFunc[E any](o Ordering, lookup func(field string) (Comparator[E], bool)) func(a, b E) int {
	type step struct {
		compare Comparator[E]
		desc    bool
	}
	var steps []step
	for _, item := range o {
		if c, ok := lookup(item.Field); ok {
			steps = append(steps, step{compare: c, desc: item.Descending})
		}
	}
	if len(steps) == 0 {
		return nil
	}
	return func(a, b E) int {
		for _, s := range steps {
			result := s.compare(a, b)
			if s.desc {
				result = -result
			}
			if result != 0 {
				return result
			}
		}
		return 0
	}
}
