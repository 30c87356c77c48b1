// Package authcontext carries the authenticated caller of a request.
package authcontext

import (
	"context"
)

type ctxKey string

const authClaimsContextKey = ctxKey("auth-claims")

// AuthClaims describes the principal on whose behalf a request runs. Scopes holds
// the coarse-grained permissions granted to the principal by the authenticating
// layer.
type AuthClaims struct {
	Subject  string
	Scopes   map[string]bool
	ClientID string
}

// ContextWithAuthClaims injects the provided AuthClaims into the parent context.
func ContextWithAuthClaims(parent context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(parent, authClaimsContextKey, claims)
}

// AuthClaimsFromContext extracts the AuthClaims from the provided ctx (if any).
func AuthClaimsFromContext(ctx context.Context) (*AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*AuthClaims)
	if !ok || claims == nil {
		return nil, false
	}

	return claims, true
}

// SubjectFromContext returns the principal identifier of the caller, if known.
func SubjectFromContext(ctx context.Context) (string, bool) {
	claims, ok := AuthClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
