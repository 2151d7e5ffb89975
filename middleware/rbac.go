package middleware

import (
	"context"
	"net/http"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/services/permissions"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// PrincipalLoader fetches the current state of a principal
type PrincipalLoader interface {
	Get(ctx context.Context, id string) (*models.Principal, error)
}

// RBAC gates routes by permission or role. The principal named by the token
// is reloaded on every request so role and grant changes apply immediately.
type RBAC struct {
	loader   PrincipalLoader
	engine   *permissions.Engine
	recorder audit.Recorder
	logger   *zap.Logger
}

// NewRBAC creates the role based access middleware
func NewRBAC(loader PrincipalLoader, engine *permissions.Engine, recorder audit.Recorder, logger *zap.Logger) *RBAC {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &RBAC{
		loader:   loader,
		engine:   engine,
		recorder: recorder,
		logger:   logger,
	}
}

// LoadPrincipal resolves the token subject into a principal and stores it in
// the context. Requests without claims pass through untouched; a token whose
// principal no longer exists or is disabled is rejected.
func (m *RBAC) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if GetClaimsFromContext(ctx) == nil || GetPrincipalFromContext(ctx) != nil {
			next.ServeHTTP(w, r)
			return
		}

		p, ok := m.current(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
	})
}

// RequirePermission allows the request only when the principal's effective
// permissions include perm
func (m *RBAC) RequirePermission(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := m.current(w, r)
			if !ok {
				return
			}

			if !m.engine.HasPermission(p, perm) {
				m.logger.Warn("permission denied",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("principal_id", p.ID),
					zap.String("permission", string(perm)))
				m.recorder.Record(r.Context(), models.AuditActionPermissionDenied, p.ID, map[string]interface{}{
					"requiredPermission": string(perm),
					"userRole":           string(p.Role),
					"url":                r.URL.String(),
					"method":             r.Method,
				})
				_ = utils.WriteError(w, http.StatusForbidden, "Insufficient permissions", map[string]interface{}{
					"required": string(perm),
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole allows the request only when the principal holds one of roles
func (m *RBAC) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make([]string, len(roles))
	for i, role := range roles {
		allowed[i] = string(role)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := m.current(w, r)
			if !ok {
				return
			}

			if !m.engine.HasRole(p, roles...) {
				m.logger.Warn("role denied",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("principal_id", p.ID),
					zap.String("role", string(p.Role)))
				m.recorder.Record(r.Context(), models.AuditActionRoleDenied, p.ID, map[string]interface{}{
					"requiredRoles": allowed,
					"userRole":      string(p.Role),
					"url":           r.URL.String(),
					"method":        r.Method,
				})
				_ = utils.WriteError(w, http.StatusForbidden, "Insufficient role", map[string]interface{}{
					"required": allowed,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// current returns the request principal, writing a 401 when there is none
func (m *RBAC) current(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	ctx := r.Context()
	if p := GetPrincipalFromContext(ctx); p != nil {
		return p, true
	}

	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		m.recorder.Record(ctx, models.AuditActionUnauthorizedAccess, "", map[string]interface{}{
			"url":    r.URL.String(),
			"method": r.Method,
		})
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}

	p, err := m.loader.Get(ctx, claims.UserID)
	switch {
	case services.IsNotFoundError(err):
		_ = utils.WriteUnauthorized(w, "Account no longer exists")
		return nil, false
	case err != nil:
		m.logger.Error("failed to load principal",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("principal_id", claims.UserID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
		return nil, false
	case !p.Active:
		_ = utils.WriteUnauthorized(w, "Account is disabled")
		return nil, false
	}
	return p, true
}
