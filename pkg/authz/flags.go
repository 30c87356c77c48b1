package authz

import (
	"fmt"
	"strings"
)

// Flags selects which grant sources a query consults. Flags are not hierarchical;
// every set flag contributes an independent predicate and the results are unioned.
type Flags uint8

const (
	// None disables authorization filtering entirely.
	None Flags = 0
	// Permission admits the whole entity set when the principal holds the entity's
	// coarse grained permission.
	Permission Flags = 1 << iota
	// Context admits rows whose identifier or group is affiliated with the principal.
	Context
	// Owner admits rows owned by the principal.
	Owner

	Any = Permission | Context | Owner
)

func (f Flags) Has(flag Flags) bool {
	return flag != None && f&flag == flag
}

func (f Flags) String() string {
	if f == None {
		return "none"
	}
	var parts []string
	if f.Has(Permission) {
		parts = append(parts, "permission")
	}
	if f.Has(Context) {
		parts = append(parts, "context")
	}
	if f.Has(Owner) {
		parts = append(parts, "owner")
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses a "|" or "," separated list of flag names, e.g. "context|owner".
func ParseFlags(s string) (Flags, error) {
	var out Flags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "none", "":
		case "permission":
			out |= Permission
		case "context":
			out |= Context
		case "owner":
			out |= Owner
		case "any":
			out |= Any
		default:
			return None, fmt.Errorf("unknown authorization flag %q", part)
		}
	}
	return out, nil
}
