package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/permissions"
	"github.com/upb/multicloud-dashboard/services/users"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// UserService defines the principal management operations
type UserService interface {
	Create(ctx context.Context, actor *models.Principal, in users.CreateInput) (*models.Principal, error)
	Get(ctx context.Context, id string) (*models.Principal, error)
	List(ctx context.Context) ([]*models.Principal, error)
	Update(ctx context.Context, actor *models.Principal, id string, in users.UpdateInput) (*models.Principal, error)
	Delete(ctx context.Context, actor *models.Principal, id string) error
	SetStatus(ctx context.Context, actor *models.Principal, id string, active *bool) (*models.Principal, error)
	SetCustomPermissions(ctx context.Context, actor *models.Principal, id string, perms []models.Permission) (*models.Principal, error)
	ChangePassword(ctx context.Context, principalID, current, next string) error
}

// PermissionsRequest is the body of PUT /users/{id}/permissions
type PermissionsRequest struct {
	Permissions []models.Permission `json:"permissions"`
}

// StatusRequest is the optional body of PUT /users/{id}/status
type StatusRequest struct {
	Active *bool `json:"active"`
}

// ChangePasswordRequest is the body of POST /me/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// RoleInfo describes one role in the catalog
type RoleInfo struct {
	Name        models.Role         `json:"name"`
	Description string              `json:"description"`
	Permissions []models.Permission `json:"permissions"`
}

// PermissionInfo describes one permission in the catalog
type PermissionInfo struct {
	Name        models.Permission `json:"name"`
	Description string            `json:"description"`
}

// UserHandler handles principal management requests
type UserHandler struct {
	service UserService
	engine  *permissions.Engine
	errs    *ErrorHandler
	logger  *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService, engine *permissions.Engine, errs *ErrorHandler, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		engine:  engine,
		errs:    errs,
		logger:  logger,
	}
}

// HandleMe handles GET /me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	_ = utils.WriteOK(w, newPrincipalResponse(p, h.engine))
}

// HandleChangePassword handles POST /me/password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), p.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteMessage(w, "Password changed successfully")
}

// HandleList handles GET /users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	out := make([]*PrincipalResponse, len(list))
	for i, p := range list {
		out[i] = newPrincipalResponse(p, h.engine)
	}
	_ = utils.WriteOK(w, out)
}

// HandleCreate handles POST /users
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req users.CreateInput
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}

	p, err := h.service.Create(r.Context(), middleware.GetPrincipalFromContext(r.Context()), req)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteCreated(w, newPrincipalResponse(p, h.engine))
}

// HandleGet handles GET /users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteOK(w, newPrincipalResponse(p, h.engine))
}

// HandleUpdate handles PUT /users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req users.UpdateInput
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}

	actor := middleware.GetPrincipalFromContext(r.Context())
	p, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteOK(w, newPrincipalResponse(p, h.engine))
}

// HandleDelete handles DELETE /users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteMessage(w, "User deleted successfully")
}

// HandleSetPermissions handles PUT /users/{id}/permissions
func (h *UserHandler) HandleSetPermissions(w http.ResponseWriter, r *http.Request) {
	var req PermissionsRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}

	actor := middleware.GetPrincipalFromContext(r.Context())
	p, err := h.service.SetCustomPermissions(r.Context(), actor, chi.URLParam(r, "id"), req.Permissions)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteOK(w, newPrincipalResponse(p, h.engine))
}

// HandleSetStatus handles PUT /users/{id}/status. An absent body toggles.
func (h *UserHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.errs.HandleValidationError(w, err)
		return
	}

	actor := middleware.GetPrincipalFromContext(r.Context())
	p, err := h.service.SetStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Active)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteOK(w, newPrincipalResponse(p, h.engine))
}

// HandleRoles handles GET /roles
func (h *UserHandler) HandleRoles(w http.ResponseWriter, r *http.Request) {
	roles := h.engine.Roles()
	out := make([]RoleInfo, len(roles))
	for i, role := range roles {
		out[i] = RoleInfo{
			Name:        role,
			Description: permissions.RoleDescriptions[role],
			Permissions: h.engine.RolePermissions(role),
		}
	}
	_ = utils.WriteOK(w, out)
}

// HandlePermissions handles GET /permissions
func (h *UserHandler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	out := make([]PermissionInfo, len(models.AllPermissions))
	for i, perm := range models.AllPermissions {
		out[i] = PermissionInfo{Name: perm, Description: permissions.PermissionDescriptions[perm]}
	}
	_ = utils.WriteOK(w, out)
}
