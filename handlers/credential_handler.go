package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/credentials"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// CredentialService manages the caller's stored provider credentials
type CredentialService interface {
	Store(ctx context.Context, principalID string, provider models.Provider, in credentials.StoreInput) (*credentials.RecordStatus, error)
	Status(ctx context.Context, principalID string) ([]credentials.RecordStatus, error)
	Delete(ctx context.Context, principalID string, provider models.Provider) error
}

// CredentialHandler handles /credentials requests. Records always belong to
// the calling principal.
type CredentialHandler struct {
	service CredentialService
	errs    *ErrorHandler
	logger  *zap.Logger
}

// NewCredentialHandler creates a new CredentialHandler
func NewCredentialHandler(service CredentialService, errs *ErrorHandler, logger *zap.Logger) *CredentialHandler {
	return &CredentialHandler{
		service: service,
		errs:    errs,
		logger:  logger,
	}
}

// HandleStore handles POST /credentials/{provider}
func (h *CredentialHandler) HandleStore(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	var req credentials.StoreInput
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}

	status, err := h.service.Store(r.Context(), p.ID, provider, req)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteOK(w, status)
}

// HandleStatus handles GET /credentials/status
func (h *CredentialHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	statuses, err := h.service.Status(r.Context(), p.ID)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteOK(w, statuses)
}

// HandleDelete handles DELETE /credentials/{provider}
func (h *CredentialHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), p.ID, provider); err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}
	_ = utils.WriteMessage(w, provider.DisplayName()+" credentials deleted")
}

func (h *CredentialHandler) provider(w http.ResponseWriter, r *http.Request) (models.Provider, bool) {
	raw := chi.URLParam(r, "provider")
	provider, err := models.ParseProvider(raw)
	if err != nil {
		names := make([]string, len(models.AllProviders))
		for i, p := range models.AllProviders {
			names[i] = string(p)
		}
		_ = utils.WriteBadRequest(w, "Invalid provider: "+raw, map[string]interface{}{
			"validProviders": strings.Join(names, ", "),
		})
		return "", false
	}
	return provider, true
}
