package auth

import "context"

// Role is the coarse permission level of a principal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	// RoleApprover may approve or reject corporate orders.
	RoleApprover Role = "approver"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleApprover:
		return true
	}
	return false
}

// Principal is the authenticated caller. Services receive it as an explicit
// argument; the context only carries it from the security middleware to the
// handler.
type Principal struct {
	UserID string
	Role   Role
}

// System is the principal used for transitions the service performs on its
// own behalf.
var System = Principal{UserID: "system", Role: RoleAdmin}

// IsAdmin reports whether p has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanApprove reports whether p may decide on corporate orders.
func (p Principal) CanApprove() bool { return p.Role == RoleAdmin || p.Role == RoleApprover }

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
