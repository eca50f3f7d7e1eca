package auth

import (
	"github.com/attendly/go-attendance-server/users"
)

// Guard makes role and tenant-scope decisions for an already-validated
// identity. Tenant isolation is absolute by default; the super-admin bypass
// is an explicit deployment choice, off unless configured.
type Guard struct {
	allowSuperAdminBypass bool
}

type GuardOption func(*Guard)

// WithSuperAdminBypass lets super admins act across tenant boundaries.
func WithSuperAdminBypass() GuardOption {
	return func(g *Guard) {
		g.allowSuperAdminBypass = true
	}
}

func NewGuard(options ...GuardOption) *Guard {
	g := &Guard{}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Authorize checks the identity's role against the allowed set, then its
// tenant against the resource's tenant. An empty resourceTenantID means the
// resource is not tenant-scoped and only the role check applies. An empty
// allowed set admits any role.
func (g *Guard) Authorize(identity users.Identity, resourceTenantID string, allowed ...users.RoleType) error {
	if len(allowed) > 0 && !roleAllowed(identity.Role, allowed) {
		return RoleForbiddenErr
	}

	if resourceTenantID == "" || identity.TenantID == resourceTenantID {
		return nil
	}
	if g.allowSuperAdminBypass && identity.Role == users.RoleSuperAdmin {
		return nil
	}
	return TenantMismatchErr
}

func roleAllowed(role users.RoleType, allowed []users.RoleType) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
		// Super admins hold every permission an admin does.
		if role == users.RoleSuperAdmin && a == users.RoleAdmin {
			return true
		}
	}
	return false
}
