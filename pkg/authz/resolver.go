package authz

import (
	"context"
	"slices"
)

//go:generate mockgen -source resolver.go -destination ../../internal/mocks/mock_resolver.go -package mocks Resolver

// Resolver answers questions about the principal of the current request.
type Resolver interface {
	// CurrentPrincipalID returns the identifier of the caller or "" when none is known.
	CurrentPrincipalID(ctx context.Context) (string, error)
	// HasPermission reports whether the caller holds the named coarse grained permission.
	HasPermission(ctx context.Context, name string) (bool, error)
	// AffiliatedIDs returns the identifiers of the given entity kind the caller is
	// affiliated with, by direct grant or through group membership.
	AffiliatedIDs(ctx context.Context, kind string) ([]string, error)
	// AffiliatedGroupCodes returns the codes of the groups the caller belongs to.
	AffiliatedGroupCodes(ctx context.Context) ([]string, error)
}

// StaticResolver is a Resolver with fixed answers. It backs the CLI and tests.
type StaticResolver struct {
	PrincipalID string
	Permissions []string
	Affiliated  map[string][]string
	GroupCodes  []string
}

var _ Resolver = (*StaticResolver)(nil)

func (s *StaticResolver) CurrentPrincipalID(context.Context) (string, error) {
	return s.PrincipalID, nil
}

func (s *StaticResolver) HasPermission(_ context.Context, name string) (bool, error) {
	return slices.Contains(s.Permissions, name), nil
}

func (s *StaticResolver) AffiliatedIDs(_ context.Context, kind string) ([]string, error) {
	return slices.Clone(s.Affiliated[kind]), nil
}

func (s *StaticResolver) AffiliatedGroupCodes(context.Context) ([]string, error) {
	return slices.Clone(s.GroupCodes), nil
}
