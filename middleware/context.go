package middleware

import (
	"context"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/services/token"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for verified token claims
	ClaimsKey contextKey = "claims"

	// PrincipalKey is the context key for the principal loaded from the store
	PrincipalKey contextKey = "principal"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves verified token claims from context
func GetClaimsFromContext(ctx context.Context) *token.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*token.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetPrincipalFromContext retrieves the current principal from context
func GetPrincipalFromContext(ctx context.Context) *models.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*models.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds the current principal to the context
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// RequestContext copies the request id, client ip and user agent into the
// context so audit events recorded further down carry them. It must run after
// chi's RequestID and RealIP middleware.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimw.GetReqID(ctx)

		ctx = WithRequestID(ctx, requestID)
		ctx = audit.WithRequestInfo(ctx, requestID, ClientIP(r))
		ctx = audit.WithUserAgent(ctx, r.UserAgent())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the caller address without its port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
