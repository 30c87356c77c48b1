// Package fieldset describes which output fields a caller wants populated.
//
// A FieldSet is an ordered set of unique field paths. Nested objects are addressed
// with dots ("Collection.Name") and collections of objects with an indexer
// ("Datasets[].Name" or "Datasets[0].Name"). A FieldSet is never mutated after it
// is created: Ensure and Merge return a new value.
package fieldset

import (
	"strings"
)

const separator = "."

// FieldSet is a sparse, ordered set of requested field paths. The nil *FieldSet is
// valid and behaves as an empty set.
type FieldSet struct {
	fields []string
	index  map[string]struct{}
}

// New returns a FieldSet holding the given paths in first-seen order. Blank paths
// and duplicates are dropped.
func New(paths ...string) *FieldSet {
	fs := &FieldSet{
		fields: make([]string, 0, len(paths)),
		index:  make(map[string]struct{}, len(paths)),
	}
	fs.add(paths...)
	return fs
}

func (f *FieldSet) add(paths ...string) {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := f.index[p]; ok {
			continue
		}
		f.index[p] = struct{}{}
		f.fields = append(f.fields, p)
	}
}

// Join builds a nested field path.
func Join(parts ...string) string {
	return strings.Join(parts, separator)
}

// IsEmpty reports whether nothing was requested.
func (f *FieldSet) IsEmpty() bool {
	return f == nil || len(f.fields) == 0
}

// Len returns the number of paths.
func (f *FieldSet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.fields)
}

// Fields returns a copy of the paths in order.
func (f *FieldSet) Fields() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.fields))
	copy(out, f.fields)
	return out
}

// HasField reports whether exactly this path was requested.
func (f *FieldSet) HasField(path string) bool {
	if f == nil {
		return false
	}
	_, ok := f.index[path]
	return ok
}

// HasOtherField reports whether any path other than the given one was requested.
// Builders use it to decide if a related object needs more than its identifier.
func (f *FieldSet) HasOtherField(path string) bool {
	if f == nil {
		return false
	}
	for _, field := range f.fields {
		if field != path {
			return true
		}
	}
	return false
}

// ExtractPrefixed returns the paths nested under prefix with the prefix stripped.
// Both "prefix.X" and indexed forms "prefix[].X" / "prefix[3].X" are matched. The
// receiver is left untouched.
func (f *FieldSet) ExtractPrefixed(prefix string) *FieldSet {
	out := New()
	if f == nil || prefix == "" {
		return out
	}
	for _, field := range f.fields {
		if rest, ok := stripPrefix(field, prefix); ok {
			out.add(rest)
		}
	}
	return out
}

// HasPrefixed reports whether any path is nested under prefix.
func (f *FieldSet) HasPrefixed(prefix string) bool {
	if f == nil {
		return false
	}
	for _, field := range f.fields {
		if _, ok := stripPrefix(field, prefix); ok {
			return true
		}
	}
	return false
}

func stripPrefix(field, prefix string) (string, bool) {
	if !strings.HasPrefix(field, prefix) {
		return "", false
	}
	rest := field[len(prefix):]
	switch {
	case strings.HasPrefix(rest, separator):
		return rest[1:], len(rest) > 1
	case strings.HasPrefix(rest, "["):
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", false
		}
		rest = rest[end+1:]
		if !strings.HasPrefix(rest, separator) || len(rest) == 1 {
			return "", false
		}
		return rest[1:], true
	default:
		return "", false
	}
}

// Ensure returns a FieldSet that contains every path of the receiver plus the given
// ones. Calling it with paths that are already present is a no-op.
func (f *FieldSet) Ensure(paths ...string) *FieldSet {
	out := New(f.Fields()...)
	out.add(paths...)
	return out
}

// Merge returns the union of the receiver and other, receiver paths first.
func (f *FieldSet) Merge(other *FieldSet) *FieldSet {
	return f.Ensure(other.Fields()...)
}

// Prefix returns a FieldSet with every path nested under prefix. It is the inverse
// of ExtractPrefixed.
func (f *FieldSet) Prefix(prefix string) *FieldSet {
	out := New()
	for _, field := range f.Fields() {
		out.add(Join(prefix, field))
	}
	return out
}

// Equal reports whether both sets contain the same paths in the same order.
func (f *FieldSet) Equal(other *FieldSet) bool {
	if f.Len() != other.Len() {
		return false
	}
	for i, field := range f.Fields() {
		if other.fields[i] != field {
			return false
		}
	}
	return true
}

// String renders the set as a comma separated list.
func (f *FieldSet) String() string {
	return strings.Join(f.Fields(), ",")
}

// Parse splits a comma separated list of paths.
func Parse(s string) *FieldSet {
	if strings.TrimSpace(s) == "" {
		return New()
	}
	return New(strings.Split(s, ",")...)
}
