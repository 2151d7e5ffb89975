package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/services/permissions"
	"github.com/upb/multicloud-dashboard/services/token"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// AuthCookieName is the cookie carrying the token for browser clients
const AuthCookieName = "auth_token"

// Authenticator checks username and password pairs
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.Principal, error)
}

// TokenService issues and verifies identity tokens
type TokenService interface {
	Issue(ctx context.Context, p *models.Principal) (string, time.Time, error)
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      *PrincipalResponse `json:"user"`
}

// VerifyRequest is the body of POST /auth/token/verify
type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyResponse reports the outcome of token verification
type VerifyResponse struct {
	Valid  bool          `json:"valid"`
	Claims *token.Claims `json:"claims,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// AuthStatusResponse is returned by GET /auth/status
type AuthStatusResponse struct {
	Authenticated    bool               `json:"authenticated"`
	User             *PrincipalResponse `json:"user,omitempty"`
	AvailableMethods []string           `json:"availableMethods"`
}

// PrincipalResponse is a principal with its effective permissions
type PrincipalResponse struct {
	*models.Principal
	Permissions []models.Permission `json:"permissions"`
}

func newPrincipalResponse(p *models.Principal, engine *permissions.Engine) *PrincipalResponse {
	return &PrincipalResponse{Principal: p, Permissions: engine.EffectivePermissions(p)}
}

// AuthHandler handles login and token related requests
type AuthHandler struct {
	auth          Authenticator
	tokens        TokenService
	engine        *permissions.Engine
	recorder      audit.Recorder
	errs          *ErrorHandler
	logger        *zap.Logger
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	auth Authenticator,
	tokens TokenService,
	engine *permissions.Engine,
	recorder audit.Recorder,
	errs *ErrorHandler,
	logger *zap.Logger,
	secureCookies bool,
) *AuthHandler {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &AuthHandler{
		auth:          auth,
		tokens:        tokens,
		engine:        engine,
		recorder:      recorder,
		errs:          errs,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Username and password are required", nil)
		return
	}

	p, err := h.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}

	signed, expiresAt, err := h.tokens.Issue(ctx, p)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    signed,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user logged in",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("principal_id", p.ID))

	_ = utils.WriteOK(w, LoginResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		User:      newPrincipalResponse(p, h.engine),
	})
}

// HandleVerify handles POST /auth/token/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Token is required", nil)
		return
	}

	claims, err := h.tokens.Verify(r.Context(), req.Token)
	if err != nil {
		_ = utils.WriteJSON(w, http.StatusUnauthorized, VerifyResponse{Valid: false, Error: token.Reason(err)})
		return
	}
	_ = utils.WriteOK(w, VerifyResponse{Valid: true, Claims: claims})
}

// HandleLogout handles POST /auth/logout. Tokens are stateless, so logout
// clears the cookie and records the event.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		h.recorder.Record(r.Context(), models.AuditActionLogout, claims.UserID, map[string]interface{}{
			"userId":   claims.UserID,
			"username": claims.Username,
		})
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	_ = utils.WriteMessage(w, "Logged out successfully")
}

// HandleStatus handles GET /auth/status
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := AuthStatusResponse{AvailableMethods: []string{"local"}}
	if p := middleware.GetPrincipalFromContext(r.Context()); p != nil {
		resp.Authenticated = true
		resp.User = newPrincipalResponse(p, h.engine)
	}
	_ = utils.WriteOK(w, resp)
}
