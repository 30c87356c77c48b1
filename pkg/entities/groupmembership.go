package entities

import (
	"context"
	"net/url"
	"slices"
	"time"

	"github.com/openfga/datagate/pkg/authz"
	"github.com/openfga/datagate/pkg/builder"
	"github.com/openfga/datagate/pkg/fieldset"
	"github.com/openfga/datagate/pkg/query"
	"github.com/openfga/datagate/pkg/remote"
)

const PermissionReadGroupMemberships = "groups.read"

// GroupMembershipRecord is a membership as served by the identity directory.
type GroupMembershipRecord struct {
	GroupCode string    `json:"groupCode"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// GroupMembershipQuery reads memberships from the directory, which filters by group
// codes and user ids only. Role and exclusion filters, every ordering and
// non-trivial scopes are evaluated in memory.
type GroupMembershipQuery struct {
	*query.Extended[*GroupMembershipQuery, GroupMembershipRecord]

	groupCodes      []string
	userIDs         []string
	roles           []string
	excludedUserIDs []string
}

func newGroupMembershipQuery(endpoint *remote.Endpoint[GroupMembershipRecord], opts ...query.Option) *GroupMembershipQuery {
	q := &GroupMembershipQuery{}
	var src query.Source[GroupMembershipRecord]
	if endpoint != nil {
		src = remote.NewSource(endpoint, q.params, groupMembershipValue)
	}
	q.Extended = query.NewExtended[*GroupMembershipQuery, GroupMembershipRecord](q, q, q, src, opts...)
	return q
}

func (q *GroupMembershipQuery) EntityName() string { return "groupmembership" }

// Policy admits memberships of affiliated groups, of groups the caller belongs to
// and the caller's own memberships.
func (q *GroupMembershipQuery) Policy() authz.Policy {
	return authz.Policy{Permission: PermissionReadGroupMemberships, Kind: "group", UseGroupCodes: true}
}

func (q *GroupMembershipQuery) IsFalseQuery() bool {
	return isSetEmpty(q.groupCodes) || isSetEmpty(q.userIDs) || isSetEmpty(q.roles)
}

func (q *GroupMembershipQuery) GroupCodes(codes []string) *GroupMembershipQuery {
	q.groupCodes = codes
	return q
}

func (q *GroupMembershipQuery) UserIDs(ids []string) *GroupMembershipQuery {
	q.userIDs = ids
	return q
}

func (q *GroupMembershipQuery) Roles(roles []string) *GroupMembershipQuery {
	q.roles = roles
	return q
}

func (q *GroupMembershipQuery) ExcludedUserIDs(ids []string) *GroupMembershipQuery {
	q.excludedUserIDs = ids
	return q
}

func (q *GroupMembershipQuery) params(*query.Statement) url.Values {
	params := url.Values{}
	for _, code := range q.groupCodes {
		params.Add("groupCode", code)
	}
	for _, id := range q.userIDs {
		params.Add("userId", id)
	}
	return params
}

func (q *GroupMembershipQuery) FilterInMemory(st *query.Statement) bool {
	return q.roles != nil || len(q.excludedUserIDs) > 0 || !st.Scope.All
}

func (q *GroupMembershipQuery) OrderInMemory(query.Ordering) bool {
	return true
}

func (q *GroupMembershipQuery) Match(st *query.Statement, r GroupMembershipRecord) bool {
	if q.roles != nil && !slices.Contains(q.roles, r.Role) {
		return false
	}
	if slices.Contains(q.excludedUserIDs, r.UserID) {
		return false
	}
	return st.Scope.Allows(r.GroupCode, r.UserID, r.GroupCode)
}

func (q *GroupMembershipQuery) Compare(field string) (query.Comparator[GroupMembershipRecord], bool) {
	switch field {
	case "GroupCode":
		return query.CompareBy(func(r GroupMembershipRecord) string { return r.GroupCode }), true
	case "UserId":
		return query.CompareBy(func(r GroupMembershipRecord) string { return r.UserID }), true
	case "Role":
		return query.CompareBy(func(r GroupMembershipRecord) string { return r.Role }), true
	case "JoinedAt":
		return query.CompareBy(func(r GroupMembershipRecord) int64 { return r.JoinedAt.UnixNano() }), true
	}
	return nil, false
}

func (q *GroupMembershipQuery) RequiredFields() []string {
	return []string{"GroupCode", "UserId", "Role"}
}

func groupMembershipValue(r GroupMembershipRecord, field string) (any, bool) {
	switch field {
	case "GroupCode":
		return r.GroupCode, true
	case "UserId":
		return r.UserID, true
	case "Role":
		return r.Role, true
	case "JoinedAt":
		return r.JoinedAt, true
	}
	return nil, false
}

// groupMembershipBuilder shapes membership records; memberships have no relations.
var groupMembershipBuilder builder.Builder[GroupMembership, GroupMembershipRecord] = builder.Func[GroupMembership, GroupMembershipRecord](
	func(_ context.Context, fields *fieldset.FieldSet, records []GroupMembershipRecord) ([]GroupMembership, error) {
		out := make([]GroupMembership, len(records))
		for i, r := range records {
			m := &out[i]
			builder.Set(fields, "GroupCode", &m.GroupCode, r.GroupCode)
			builder.Set(fields, "UserId", &m.UserID, r.UserID)
			builder.Set(fields, "Role", &m.Role, r.Role)
			builder.Set(fields, "JoinedAt", &m.JoinedAt, ptr(r.JoinedAt))
		}
		return out, nil
	},
)
