// Package authz composes the authorization scope a query applies to its source.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/logger"
)

// ErrForbidden is returned by Enforce when the principal lacks the permission.
var ErrForbidden = errors.New("forbidden")

// Policy describes how an entity is authorized.
type Policy struct {
	// Permission is the coarse grained permission that admits the whole entity set.
	Permission string
	// Kind is the entity kind passed to Resolver.AffiliatedIDs.
	Kind string
	// UseGroupCodes adds the principal's group codes to the Context predicate.
	UseGroupCodes bool
}

// Scope is the resolved authorization predicate: a row passes when All is set, its
// identifier is in IDs, one of its groups is in GroupCodes or its owner is OwnerID.
type Scope struct {
	All        bool
	IDs        []string
	GroupCodes []string
	OwnerID    string
}

// AllowAll returns a scope that imposes no filtering.
func AllowAll() Scope {
	return Scope{All: true}
}

// DenyAll returns a scope that admits nothing.
func DenyAll() Scope {
	return Scope{}
}

// IsEmpty reports whether the scope admits nothing.
func (s Scope) IsEmpty() bool {
	return !s.All && len(s.IDs) == 0 && len(s.GroupCodes) == 0 && s.OwnerID == ""
}

// Allows evaluates the scope against a single row.
func (s Scope) Allows(id, ownerID string, groupCodes ...string) bool {
	if s.All {
		return true
	}
	if slices.Contains(s.IDs, id) {
		return true
	}
	if s.OwnerID != "" && s.OwnerID == ownerID {
		return true
	}
	for _, code := range groupCodes {
		if slices.Contains(s.GroupCodes, code) {
			return true
		}
	}
	return false
}

type Authorizer struct {
	resolver Resolver
	logger   logger.Logger
}

type AuthorizerOption func(*Authorizer)

func WithLogger(l logger.Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.logger = l
	}
}

// NewAuthorizer creates an authorizer bound to the resolver of one request.
func NewAuthorizer(resolver Resolver, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		resolver: resolver,
		logger:   logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Scope resolves the flags into a predicate. Any resolver failure, or a set of flags
// that yields no usable predicate, produces a scope that denies everything.
func (a *Authorizer) Scope(ctx context.Context, flags Flags, policy Policy) Scope {
	if flags == None {
		return AllowAll()
	}
	if a == nil || a.resolver == nil {
		return DenyAll()
	}

	scope, err := a.compose(ctx, flags, policy)
	if err != nil {
		a.logger.WarnWithContext(ctx, "authorization scope resolution failed",
			zap.String("kind", policy.Kind),
			zap.Stringer("flags", flags),
			zap.Error(err),
		)
		return DenyAll()
	}
	return scope
}

func (a *Authorizer) compose(ctx context.Context, flags Flags, policy Policy) (Scope, error) {
	if flags.Has(Permission) && policy.Permission != "" {
		ok, err := a.resolver.HasPermission(ctx, policy.Permission)
		if err != nil {
			return Scope{}, fmt.Errorf("permission %q: %w", policy.Permission, err)
		}
		if ok {
			return AllowAll(), nil
		}
	}

	var scope Scope
	if flags.Has(Context) {
		if policy.Kind != "" {
			ids, err := a.resolver.AffiliatedIDs(ctx, policy.Kind)
			if err != nil {
				return Scope{}, fmt.Errorf("affiliated ids: %w", err)
			}
			scope.IDs = ids
		}
		if policy.UseGroupCodes {
			codes, err := a.resolver.AffiliatedGroupCodes(ctx)
			if err != nil {
				return Scope{}, fmt.Errorf("affiliated group codes: %w", err)
			}
			scope.GroupCodes = codes
		}
	}

	if flags.Has(Owner) {
		principal, err := a.resolver.CurrentPrincipalID(ctx)
		if err != nil {
			return Scope{}, fmt.Errorf("current principal: %w", err)
		}
		scope.OwnerID = principal
	}

	return scope, nil
}

// Enforce requires the named permission. Unlike Scope it reports an error instead
// of narrowing a result.
func (a *Authorizer) Enforce(ctx context.Context, permission string) error {
	if a == nil || a.resolver == nil {
		return ErrForbidden
	}

	ok, err := a.resolver.HasPermission(ctx, permission)
	if err != nil {
		a.logger.WarnWithContext(ctx, "permission check failed", zap.String("permission", permission), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if !ok {
		return fmt.Errorf("%w: missing permission %q", ErrForbidden, permission)
	}
	return nil
}
