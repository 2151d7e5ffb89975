package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/multicloud-dashboard/services/token"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for validating identity tokens
type TokenValidator interface {
	// ValidateToken validates a token and returns its claims
	ValidateToken(ctx context.Context, token string) (*token.Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// authTokenCookieName is the cookie checked when no Authorization header is sent
const authTokenCookieName = "auth_token"

// RequireAuth rejects requests without a valid token. The 401 body carries a
// machine-readable reason in details.reason.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		raw := ExtractToken(r)
		if raw == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			writeAuthFailure(w, "Access token required", token.ReasonMissing)
			return
		}

		claims, err := m.validator.ValidateToken(ctx, raw)
		if err != nil {
			reason := token.Reason(err)
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.String("reason", reason))
			writeAuthFailure(w, "Invalid or expired token", reason)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("principal_id", claims.UserID))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// OptionalAuth attaches claims when a valid token is present and otherwise
// continues anonymously
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := ExtractToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.validator.ValidateToken(ctx, raw)
		if err != nil {
			m.logger.Debug("ignoring invalid optional token",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("reason", token.Reason(err)))
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

func writeAuthFailure(w http.ResponseWriter, message, reason string) {
	_ = utils.WriteError(w, http.StatusUnauthorized, message, map[string]interface{}{
		"reason": reason,
	})
}

// ExtractToken extracts the token from the Authorization header ("Bearer TOKEN")
// or the auth_token cookie. The header takes precedence when both are present.
func ExtractToken(r *http.Request) string {
	if t := extractBearerToken(r); t != "" {
		return t
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
