package permissions

import (
	"sort"

	"github.com/upb/multicloud-dashboard/models"
)

// RoleTable maps each role to its base permission set
type RoleTable map[models.Role][]models.Permission

// DefaultRoleTable returns the built-in role to permission mapping
func DefaultRoleTable() RoleTable {
	return RoleTable{
		models.RoleSuperAdmin: append([]models.Permission(nil), models.AllPermissions...),
		models.RoleAdmin: {
			models.PermViewDashboard,
			models.PermViewResources,
			models.PermViewCosts,
			models.PermManageUsers,
			models.PermManageCredentials,
			models.PermViewAuditLogs,
		},
		models.RoleUser: {
			models.PermViewDashboard,
			models.PermViewResources,
			models.PermViewCosts,
		},
	}
}

// Descriptions are shown by the role and permission catalog endpoints
var (
	RoleDescriptions = map[models.Role]string{
		models.RoleSuperAdmin: "Full system access including user management",
		models.RoleAdmin:      "Manage users and credentials, view all resources",
		models.RoleUser:       "View dashboard and resources",
	}

	PermissionDescriptions = map[models.Permission]string{
		models.PermViewDashboard:     "View the main dashboard",
		models.PermViewResources:     "View cloud resources",
		models.PermViewCosts:         "View cost analytics",
		models.PermManageUsers:       "Create, update and delete users",
		models.PermManageCredentials: "Manage cloud provider credentials",
		models.PermManageProviders:   "Configure cloud providers",
		models.PermViewAuditLogs:     "View audit logs",
		models.PermManageSettings:    "Manage system settings",
		models.PermDeleteResources:   "Delete cloud resources",
	}
)

// Engine resolves effective permissions from a static role table plus the
// principal's custom grants. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	roles map[models.Role]map[models.Permission]struct{}
	known map[models.Permission]struct{}
	order []models.Role
}

// NewEngine creates an Engine from a role table. The table is copied.
func NewEngine(table RoleTable) *Engine {
	e := &Engine{
		roles: make(map[models.Role]map[models.Permission]struct{}, len(table)),
		known: make(map[models.Permission]struct{}, len(models.AllPermissions)),
	}
	for _, p := range models.AllPermissions {
		e.known[p] = struct{}{}
	}
	for _, role := range models.AllRoles {
		perms, ok := table[role]
		if !ok {
			continue
		}
		set := make(map[models.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
			e.known[p] = struct{}{}
		}
		e.roles[role] = set
		e.order = append(e.order, role)
	}
	return e
}

// EffectivePermissions returns base role permissions unioned with custom
// grants, sorted and without duplicates. A nil principal has no permissions.
func (e *Engine) EffectivePermissions(p *models.Principal) []models.Permission {
	if p == nil {
		return []models.Permission{}
	}
	set := make(map[models.Permission]struct{})
	for perm := range e.roles[p.Role] {
		set[perm] = struct{}{}
	}
	for _, perm := range p.CustomPermissions {
		set[perm] = struct{}{}
	}

	out := make([]models.Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasPermission reports whether the principal's role or custom grants include perm
func (e *Engine) HasPermission(p *models.Principal, perm models.Permission) bool {
	if p == nil {
		return false
	}
	if _, ok := e.roles[p.Role][perm]; ok {
		return true
	}
	for _, custom := range p.CustomPermissions {
		if custom == perm {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds one of the given roles
func (e *Engine) HasRole(p *models.Principal, roles ...models.Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// KnownPermission reports whether perm is a recognised permission tag
func (e *Engine) KnownPermission(perm models.Permission) bool {
	_, ok := e.known[perm]
	return ok
}

// Roles returns the configured roles, highest privilege first
func (e *Engine) Roles() []models.Role {
	return append([]models.Role(nil), e.order...)
}

// RolePermissions returns the sorted base permissions of a role
func (e *Engine) RolePermissions(role models.Role) []models.Permission {
	out := make([]models.Permission, 0, len(e.roles[role]))
	for perm := range e.roles[role] {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
