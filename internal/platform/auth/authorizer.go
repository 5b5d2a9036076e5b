package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNoPrincipal = errors.New("no authenticated principal")
	ErrForbidden   = errors.New("caller may not act for principal")
)

// ContextAuthorizer checks principals against the identity that the auth
// middleware put on the request context. Admins may act for anyone.
type ContextAuthorizer struct{}

func (ContextAuthorizer) Require(ctx context.Context, principal string) error {
	caller := UserIDFromContext(ctx)
	if caller == "" {
		return ErrNoPrincipal
	}
	if principal == "" {
		return fmt.Errorf("%w: empty principal", ErrForbidden)
	}
	if caller == principal || isAdmin(ctx) {
		return nil
	}
	return fmt.Errorf("%w: %s acting as %s", ErrForbidden, caller, principal)
}

func (ContextAuthorizer) RequireAdmin(ctx context.Context, principal string) error {
	caller := UserIDFromContext(ctx)
	if caller == "" {
		return ErrNoPrincipal
	}
	if caller != principal {
		return fmt.Errorf("%w: %s acting as %s", ErrForbidden, caller, principal)
	}
	if !isAdmin(ctx) {
		return fmt.Errorf("%w: %s is not an admin", ErrForbidden, principal)
	}
	return nil
}

// SystemAuthorizer accepts every principal. The CLI uses it for operator
// commands run with direct store access.
type SystemAuthorizer struct{}

func (SystemAuthorizer) Require(context.Context, string) error      { return nil }
func (SystemAuthorizer) RequireAdmin(context.Context, string) error { return nil }

func isAdmin(ctx context.Context) bool {
	return slices.Contains(RolesFromContext(ctx), RoleAdmin)
}
