// Package users manages principals: creation, updates, deletion, status,
// custom permission grants, password login and password changes.
package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/services/permissions"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 8

// Bootstrap account created when no active super admin exists
const (
	BootstrapUsername        = "superadmin"
	BootstrapEmail           = "admin@multicloud-dashboard.local"
	DefaultBootstrapPassword = "ChangeMe@123"
)

// CredentialInvalidator drops cached provider credentials of a principal
type CredentialInvalidator interface {
	Invalidate(ctx context.Context, principalID string, providers ...models.Provider)
}

// CreateInput is the payload for creating a principal
type CreateInput struct {
	Username string      `json:"username" validate:"required,min=3,max=64"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=super_admin admin user"`
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Username *string      `json:"username,omitempty" validate:"omitempty,min=3,max=64"`
	Email    *string      `json:"email,omitempty" validate:"omitempty,email"`
	Password *string      `json:"password,omitempty" validate:"omitempty,min=8"`
	Role     *models.Role `json:"role,omitempty" validate:"omitempty,oneof=super_admin admin user"`
	Active   *bool        `json:"isActive,omitempty"`
}

// Service manages principals and enforces the account invariants
type Service struct {
	// mu serializes principal writes so the last active super admin check
	// and the write that depends on it cannot interleave with another
	mu sync.Mutex

	principals  repositories.PrincipalRepository
	credentials repositories.CredentialRepository
	tx          repositories.TransactionManager
	engine      *permissions.Engine
	hasher      PasswordHasher
	recorder    audit.Recorder
	invalidator CredentialInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a user service
func NewService(
	repos *repositories.Repositories,
	engine *permissions.Engine,
	hasher PasswordHasher,
	recorder audit.Recorder,
	invalidator CredentialInvalidator,
	logger *zap.Logger,
) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		principals:  repos.Principals,
		credentials: repos.Credentials,
		tx:          repos.Tx,
		engine:      engine,
		hasher:      hasher,
		recorder:    recorder,
		invalidator: invalidator,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a principal. Only a super admin may create another super admin.
func (s *Service) Create(ctx context.Context, actor *models.Principal, in CreateInput) (*models.Principal, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, services.NewValidationError("Username, email, and password are required")
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.IsValid() {
		return nil, services.NewValidationError(fmt.Sprintf("Invalid role: %s", in.Role))
	}
	if in.Role.IsHighest() && !isHighest(actor) {
		return nil, services.NewForbiddenError("Only super admins can create super admin accounts")
	}
	if err := s.checkUnique(ctx, "", in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}
	p := models.NewPrincipal(in.Username, in.Email, hash, in.Role, actorID(actor))
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.NewConflictError("Username or email already exists")
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.recorder.Record(ctx, models.AuditActionUserCreated, actorID(actor), map[string]interface{}{
		"userId":    p.ID,
		"username":  p.Username,
		"email":     p.Email,
		"role":      string(p.Role),
		"createdBy": actorID(actor),
	})
	s.logger.Info("user created", zap.String("user_id", p.ID), zap.String("role", string(p.Role)))
	return p, nil
}

// Get returns a principal by id
func (s *Service) Get(ctx context.Context, id string) (*models.Principal, error) {
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFoundError("User not found")
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return p, nil
}

// List returns every principal
func (s *Service) List(ctx context.Context) ([]*models.Principal, error) {
	list, err := s.principals.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	return list, nil
}

// Update applies a partial update on behalf of actor
func (s *Service) Update(ctx context.Context, actor *models.Principal, id string, in UpdateInput) (*models.Principal, error) {
	var hash string
	if in.Password != nil {
		if err := checkPassword(*in.Password); err != nil {
			return nil, err
		}
		var err error
		if hash, err = s.hasher.Hash(*in.Password); err != nil {
			return nil, services.WrapInternal("failed to hash password", err)
		}
	}
	return s.update(ctx, actor, id, hash, func(*models.Principal) UpdateInput { return in })
}

// update reloads the target and applies the input built from it in one
// transaction under the write lock. hash replaces the password when the
// input carries one.
func (s *Service) update(ctx context.Context, actor *models.Principal, id, hash string, build func(target *models.Principal) UpdateInput) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		target  *models.Principal
		changed []string
	)
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		if target, err = s.Get(ctx, id); err != nil {
			return err
		}
		if changed, err = s.apply(ctx, actor, target, build(target), hash); err != nil || len(changed) == 0 {
			return err
		}
		return s.save(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.recorder.Record(ctx, models.AuditActionUserUpdated, actorID(actor), map[string]interface{}{
			"userId":    target.ID,
			"updates":   changed,
			"updatedBy": actorID(actor),
		})
	}
	return target, nil
}

// apply validates in against the account rules and copies it onto target.
// It returns the names of the changed fields.
func (s *Service) apply(ctx context.Context, actor, target *models.Principal, in UpdateInput, hash string) ([]string, error) {
	if err := s.checkManage(actor, target); err != nil {
		return nil, err
	}

	var changed []string
	username, email := target.Username, target.Email
	if in.Username != nil {
		username = strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, services.NewValidationError("Username cannot be empty")
		}
	}
	if in.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, services.NewValidationError("Email cannot be empty")
		}
	}
	if username != target.Username || email != target.Email {
		if err := s.checkUnique(ctx, target.ID, username, email); err != nil {
			return nil, err
		}
		if username != target.Username {
			changed = append(changed, "username")
		}
		if email != target.Email {
			changed = append(changed, "email")
		}
		target.Username, target.Email = username, email
	}

	if in.Role != nil && *in.Role != target.Role {
		role := *in.Role
		if !role.IsValid() {
			return nil, services.NewValidationError(fmt.Sprintf("Invalid role: %s", role))
		}
		if role.IsHighest() && !isHighest(actor) {
			return nil, services.NewForbiddenError("Only super admins can assign super admin role")
		}
		if target.IsSuperAdmin() && target.Active {
			if err := s.ensureAnotherSuperAdmin(ctx); err != nil {
				return nil, err
			}
		}
		target.Role = role
		changed = append(changed, "role")
	}

	if in.Active != nil && *in.Active != target.Active {
		if !*in.Active {
			if err := s.checkDisable(ctx, actor, target); err != nil {
				return nil, err
			}
		}
		target.Active = *in.Active
		changed = append(changed, "isActive")
	}

	if in.Password != nil {
		target.PasswordHash = hash
		changed = append(changed, "password")
	}
	return changed, nil
}

// Delete removes a principal, its credential records and its cached
// credentials. Actors cannot delete themselves or the last super admin.
func (s *Service) Delete(ctx context.Context, actor *models.Principal, id string) error {
	if actor != nil && actor.ID == id {
		return services.NewValidationError("Cannot delete your own account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var target *models.Principal
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		if target, err = s.Get(ctx, id); err != nil {
			return err
		}
		if err := s.checkManage(actor, target); err != nil {
			return err
		}
		if target.IsSuperAdmin() && target.Active {
			if err := s.ensureAnotherSuperAdmin(ctx); err != nil {
				return err
			}
		}
		if err := s.credentials.DeleteByPrincipal(ctx, id); err != nil {
			return services.WrapInternal("failed to delete credential records", err)
		}
		if err := s.principals.Delete(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.NewNotFoundError("User not found")
			}
			return services.WrapInternal("failed to delete user", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, id)
	}
	s.recorder.Record(ctx, models.AuditActionUserDeleted, actorID(actor), map[string]interface{}{
		"userId":    id,
		"username":  target.Username,
		"deletedBy": actorID(actor),
	})
	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// SetStatus sets the active flag; a nil value toggles it
func (s *Service) SetStatus(ctx context.Context, actor *models.Principal, id string, active *bool) (*models.Principal, error) {
	return s.update(ctx, actor, id, "", func(target *models.Principal) UpdateInput {
		next := !target.Active
		if active != nil {
			next = *active
		}
		return UpdateInput{Active: &next}
	})
}

// SetCustomPermissions replaces the custom grants of a principal. Only the
// highest role may grant permissions.
func (s *Service) SetCustomPermissions(ctx context.Context, actor *models.Principal, id string, perms []models.Permission) (*models.Principal, error) {
	if !isHighest(actor) {
		return nil, services.NewForbiddenError("Only super admins can set custom permissions")
	}
	seen := make(map[models.Permission]bool, len(perms))
	grants := make([]models.Permission, 0, len(perms))
	for _, perm := range perms {
		if !s.engine.KnownPermission(perm) {
			return nil, services.NewValidationError(fmt.Sprintf("Unknown permission: %s", perm))
		}
		if !seen[perm] {
			seen[perm] = true
			grants = append(grants, perm)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i] < grants[j] })

	target, err := s.patch(ctx, id, func(p *models.Principal) { p.CustomPermissions = grants })
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, models.AuditActionPermissionsUpdated, actorID(actor), map[string]interface{}{
		"userId":      target.ID,
		"permissions": grants,
		"setBy":       actorID(actor),
	})
	return target, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords produce the same error; disabled accounts are reported as such.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.Principal, error) {
	p, err := s.principals.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapInternal("failed to load user", err)
		}
		s.loginFailed(ctx, "", username, "user_not_found")
		return nil, services.ErrInvalidCredentials
	}
	if !p.Active {
		s.loginFailed(ctx, p.ID, username, "account_disabled")
		return nil, services.ErrAccountDisabled
	}
	if !s.hasher.Verify(p.PasswordHash, password) {
		s.loginFailed(ctx, p.ID, username, "invalid_password")
		return nil, services.ErrInvalidCredentials
	}

	now := s.now()
	if updated, err := s.patch(ctx, p.ID, func(q *models.Principal) { q.LastLogin = &now }); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", p.ID), zap.Error(err))
		p.LastLogin = &now
	} else {
		p = updated
	}

	s.recorder.Record(ctx, models.AuditActionLoginSuccess, p.ID, map[string]interface{}{
		"userId":   p.ID,
		"username": p.Username,
		"role":     string(p.Role),
	})
	return p, nil
}

// ChangePassword replaces the caller's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, principalID, current, next string) error {
	if current == "" || next == "" {
		return services.NewValidationError("Current password and new password are required")
	}
	if err := checkPassword(next); err != nil {
		return err
	}
	p, err := s.Get(ctx, principalID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(p.PasswordHash, current) {
		return services.NewUnauthorizedError("Current password is incorrect", nil)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return services.WrapInternal("failed to hash password", err)
	}
	if _, err := s.patch(ctx, p.ID, func(q *models.Principal) { q.PasswordHash = hash }); err != nil {
		return err
	}
	s.recorder.Record(ctx, models.AuditActionPasswordChanged, p.ID, map[string]interface{}{"userId": p.ID})
	return nil
}

// EnsureBootstrapAdmin creates the bootstrap super admin when no active super
// admin exists. It reports whether an account was created.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, password string) (bool, error) {
	n, err := s.principals.CountActiveByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		return false, fmt.Errorf("count super admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if password == "" {
		password = DefaultBootstrapPassword
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash bootstrap password: %w", err)
	}
	p := models.NewPrincipal(BootstrapUsername, BootstrapEmail, hash, models.RoleSuperAdmin, models.SystemActor)
	if err := s.principals.Create(ctx, p); err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.recorder.Record(ctx, models.AuditActionUserCreated, "", map[string]interface{}{
		"userId":    p.ID,
		"username":  p.Username,
		"role":      string(p.Role),
		"createdBy": models.SystemActor,
	})
	if password == DefaultBootstrapPassword {
		s.logger.Warn("created bootstrap super admin with the default password, change it immediately",
			zap.String("username", BootstrapUsername))
	} else {
		s.logger.Info("created bootstrap super admin", zap.String("username", BootstrapUsername))
	}
	return true, nil
}

// patch reloads a principal under the write lock, applies mutate and saves it
func (s *Service) patch(ctx context.Context, id string, mutate func(p *models.Principal)) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(p)
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// inTransaction runs fn in a store transaction. Store failures that are not
// already domain errors become internal errors.
func (s *Service) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := services.WithTransaction(ctx, s.tx, fn)
	if err != nil && services.GetErrorType(err) == "" {
		return services.WrapInternal("user store transaction failed", err)
	}
	return err
}

func (s *Service) save(ctx context.Context, p *models.Principal) error {
	p.UpdatedAt = s.now()
	if err := s.principals.Update(ctx, p); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return services.NewNotFoundError("User not found")
		case errors.Is(err, repositories.ErrDuplicate):
			return services.NewConflictError("Username or email already exists")
		}
		return services.WrapInternal("failed to update user", err)
	}
	return nil
}

func (s *Service) checkUnique(ctx context.Context, selfID, username, email string) error {
	if existing, err := s.principals.GetByUsername(ctx, username); err == nil && existing.ID != selfID {
		return services.ErrDuplicateUsername
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return services.WrapInternal("failed to check username", err)
	}
	if existing, err := s.principals.GetByEmail(ctx, email); err == nil && existing.ID != selfID {
		return services.ErrDuplicateEmail
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return services.WrapInternal("failed to check email", err)
	}
	return nil
}

// checkManage stops anyone below the highest role from changing a super admin
func (s *Service) checkManage(actor, target *models.Principal) error {
	if target.IsSuperAdmin() && !isHighest(actor) {
		return services.NewForbiddenError("Only super admins can modify super admin accounts")
	}
	return nil
}

func (s *Service) checkDisable(ctx context.Context, actor, target *models.Principal) error {
	if actor != nil && actor.ID == target.ID {
		return services.NewValidationError("Cannot disable your own account")
	}
	if target.IsSuperAdmin() {
		return s.ensureAnotherSuperAdmin(ctx)
	}
	return nil
}

// ensureAnotherSuperAdmin fails when removing one active super admin would
// leave none
func (s *Service) ensureAnotherSuperAdmin(ctx context.Context) error {
	n, err := s.principals.CountActiveByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		return services.WrapInternal("failed to count super admins", err)
	}
	if n <= 1 {
		return services.ErrLastSuperAdmin
	}
	return nil
}

func (s *Service) loginFailed(ctx context.Context, principalID, username, reason string) {
	s.recorder.Record(ctx, models.AuditActionLoginFailed, principalID, map[string]interface{}{
		"username": username,
		"reason":   reason,
	})
}

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return services.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

func isHighest(p *models.Principal) bool {
	return p != nil && p.IsSuperAdmin()
}

func actorID(p *models.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}
