package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"go.uber.org/zap"
)

// Verification failure causes. Use errors.Is against the error returned by Verify.
var (
	ErrMissing       = errors.New("token missing")
	ErrExpired       = errors.New("token expired")
	ErrBadSignature  = errors.New("invalid token signature")
	ErrWrongAudience = errors.New("invalid token audience")
	ErrWrongIssuer   = errors.New("invalid token issuer")
	ErrMalformed     = errors.New("malformed token")
)

// Machine-readable reasons returned to API clients
const (
	ReasonMissing       = "missing_token"
	ReasonExpired       = "token_expired"
	ReasonBadSignature  = "invalid_signature"
	ReasonWrongAudience = "invalid_audience"
	ReasonWrongIssuer   = "invalid_issuer"
	ReasonMalformed     = "malformed_token"
)

var reasons = map[error]string{
	ErrMissing:       ReasonMissing,
	ErrExpired:       ReasonExpired,
	ErrBadSignature:  ReasonBadSignature,
	ErrWrongAudience: ReasonWrongAudience,
	ErrWrongIssuer:   ReasonWrongIssuer,
	ErrMalformed:     ReasonMalformed,
}

// Reason returns the machine-readable reason for a verification error
func Reason(err error) string {
	for cause, reason := range reasons {
		if errors.Is(err, cause) {
			return reason
		}
	}
	return ReasonMalformed
}

// Config holds token signing configuration
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
	// Now overrides the clock; nil means time.Now
	Now func() time.Time
}

// Claims are the stable principal fields carried by a token
type Claims struct {
	UserID   string      `json:"id"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	Provider string      `json:"provider"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 signed identity tokens
type Service struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
	recorder audit.Recorder
	logger   *zap.Logger
}

// NewService creates a token service
func NewService(cfg Config, recorder audit.Recorder, logger *zap.Logger) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		expiry:   cfg.Expiry,
		now:      cfg.Now,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Expiry returns the configured token lifetime
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// Issue signs a token for p and returns it with its expiry time
func (s *Service) Issue(ctx context.Context, p *models.Principal) (string, time.Time, error) {
	if p == nil {
		return "", time.Time{}, services.NewValidationError("principal is required")
	}
	provider := p.Provider
	if provider == "" {
		provider = "local"
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := &Claims{
		UserID:   p.ID,
		Email:    p.Email,
		Username: p.Username,
		Role:     p.Role,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   p.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, services.WrapInternal("failed to sign token", err)
	}

	s.recorder.Record(ctx, models.AuditActionTokenIssued, p.ID, map[string]interface{}{
		"userId":    p.ID,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer and audience. It never panics on
// malformed input; every failure is an unauthorized DomainError wrapping one
// of the Err* causes.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, s.reject(ctx, ErrMissing, nil)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, s.reject(ctx, classify(err), err)
	}
	return claims, nil
}

// ValidateToken adapts Verify to the middleware validator shape
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	return s.Verify(ctx, tokenString)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrWrongAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrWrongIssuer
	default:
		return ErrMalformed
	}
}

func (s *Service) reject(ctx context.Context, cause, err error) error {
	reason := reasons[cause]
	wrapped := cause
	if err != nil {
		wrapped = fmt.Errorf("%w: %v", cause, err)
	}

	s.logger.Debug("token verification failed", zap.String("reason", reason), zap.Error(err))
	if cause != ErrMissing {
		s.recorder.Record(ctx, models.AuditActionTokenRejected, "", map[string]interface{}{
			"reason": reason,
		})
	}
	return services.NewUnauthorizedError(cause.Error(), wrapped).WithDetail("reason", reason)
}
