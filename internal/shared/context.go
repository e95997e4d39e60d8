package shared

import "context"

// Role names the coarse capability level of an authenticated caller.
type Role string

const (
	// RoleAdmin spans all franchises.
	RoleAdmin Role = "admin"
	// RoleManager manages a single franchise.
	RoleManager Role = "manager"
	// RoleStaff operates a single franchise with no approval rights.
	RoleStaff Role = "staff"
)

// Scope is the franchise scope of the authenticated caller. It is passed into
// every service operation as a capability; cross-franchise mutations are
// rejected before any ledger call is made.
type Scope struct {
	UserID      int64
	FranchiseID int64
	Role        Role
}

// IsAdmin reports whether the scope spans all franchises.
func (s Scope) IsAdmin() bool { return s.Role == RoleAdmin }

// CoversFranchise reports whether the scope may act on the given franchise.
func (s Scope) CoversFranchise(franchiseID int64) bool {
	return s.IsAdmin() || s.FranchiseID == franchiseID
}

type scopeContextKey struct{}

// ContextWithScope stores the caller scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the caller scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
