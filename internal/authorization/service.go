package authorization

import "context"

type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleSystem       Role = "system"
)

// Principal is the caller as asserted by the upstream auth gateway.
type Principal struct {
	ActorID   string
	Role      Role
	CompanyID string
}

// Platform reports whether the principal acts across all tenants.
func (p Principal) Platform() bool {
	return p.Role == RoleSuperAdmin || p.Role == RoleSystem
}

type Service interface {
	// Authorize checks that p may perform action on object. targetCompanyID
	// scopes the check for tenant-owned resources; empty means the caller's own tenant.
	Authorize(ctx context.Context, p Principal, object, action, targetCompanyID string) error
}
