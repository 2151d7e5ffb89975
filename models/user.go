package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a coarse privilege tier. Roles are ordered: super_admin > admin > user.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// AllRoles lists the roles from highest to lowest privilege
var AllRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleUser}

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsHighest reports whether r is the highest privilege tier
func (r Role) IsHighest() bool {
	return r == RoleSuperAdmin
}

// Permission is an atomic capability tag used to gate an operation
type Permission string

const (
	PermViewDashboard     Permission = "view_dashboard"
	PermViewResources     Permission = "view_resources"
	PermViewCosts         Permission = "view_costs"
	PermManageUsers       Permission = "manage_users"
	PermManageCredentials Permission = "manage_credentials"
	PermManageProviders   Permission = "manage_providers"
	PermViewAuditLogs     Permission = "view_audit_logs"
	PermManageSettings    Permission = "manage_settings"
	PermDeleteResources   Permission = "delete_resources"
)

// AllPermissions lists every known permission tag
var AllPermissions = []Permission{
	PermViewDashboard,
	PermViewResources,
	PermViewCosts,
	PermManageUsers,
	PermManageCredentials,
	PermManageProviders,
	PermViewAuditLogs,
	PermManageSettings,
	PermDeleteResources,
}

// Principal is an authenticated user with a role and custom permission grants
type Principal struct {
	ID                string       `json:"id" db:"id"`
	Username          string       `json:"username" db:"username"`
	Email             string       `json:"email" db:"email"`
	PasswordHash      string       `json:"-" db:"password_hash"`
	Role              Role         `json:"role" db:"role"`
	CustomPermissions []Permission `json:"customPermissions" db:"custom_permissions"`
	Active            bool         `json:"isActive" db:"is_active"`
	Provider          string       `json:"provider" db:"provider"` // identity origin, "local" for password logins
	CreatedBy         string       `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt         time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time    `json:"updatedAt" db:"updated_at"`
	LastLogin         *time.Time   `json:"lastLogin" db:"last_login"`
}

// TableName returns the table name for the Principal model
func (Principal) TableName() string {
	return "principals"
}

// NewPrincipal creates a new active local Principal
func NewPrincipal(username, email, passwordHash string, role Role, createdBy string) *Principal {
	now := time.Now().UTC()
	return &Principal{
		ID:                uuid.New().String(),
		Username:          username,
		Email:             strings.ToLower(email),
		PasswordHash:      passwordHash,
		Role:              role,
		CustomPermissions: []Permission{},
		Active:            true,
		Provider:          "local",
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Clone returns a deep copy so stores never hand out shared mutable state
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	c.CustomPermissions = append([]Permission(nil), p.CustomPermissions...)
	if p.LastLogin != nil {
		t := *p.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// IsSuperAdmin returns true if the principal holds the highest role
func (p *Principal) IsSuperAdmin() bool {
	return p.Role.IsHighest()
}
