package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"go.uber.org/zap"
)

type recordedEvent struct {
	action  models.AuditAction
	userID  string
	details map[string]interface{}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeRecorder) Record(_ context.Context, action models.AuditAction, userID string, details map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{action, userID, details})
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestService(t *testing.T, c *clock, rec *fakeRecorder) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret:   "test-secret",
		Issuer:   "multi-cloud-dashboard",
		Audience: "dashboard-api",
		Expiry:   24 * time.Hour,
		Now:      c.Now,
	}, rec, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func testPrincipal() *models.Principal {
	p := models.NewPrincipal("alice", "alice@example.com", "hash", models.RoleAdmin, "")
	p.Provider = ""
	return p
}

func TestService_IssueVerifyRoundTrip(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rec := &fakeRecorder{}
	svc := newTestService(t, c, rec)
	p := testPrincipal()

	tok, expiresAt, err := svc.Issue(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(24*time.Hour), expiresAt)

	c.t = c.t.Add(23 * time.Hour)
	claims, err := svc.Verify(context.Background(), tok)
	require.NoError(t, err)

	assert.Equal(t, p.ID, claims.UserID)
	assert.Equal(t, p.ID, claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "local", claims.Provider)

	require.Len(t, rec.events, 1)
	assert.Equal(t, models.AuditActionTokenIssued, rec.events[0].action)
	assert.Equal(t, p.ID, rec.events[0].details["userId"])
	assert.NotEmpty(t, rec.events[0].details["expiresAt"])
}

func TestService_VerifyExpired(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rec := &fakeRecorder{}
	svc := newTestService(t, c, rec)

	tok, _, err := svc.Issue(context.Background(), testPrincipal())
	require.NoError(t, err)

	c.t = c.t.Add(24*time.Hour + time.Second)
	_, err = svc.Verify(context.Background(), tok)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrBadSignature)
	assert.True(t, services.IsUnauthorizedError(err))
	assert.Equal(t, ReasonExpired, Reason(err))

	require.Len(t, rec.events, 2)
	assert.Equal(t, models.AuditActionTokenRejected, rec.events[1].action)
	assert.Equal(t, ReasonExpired, rec.events[1].details["reason"])
}

func TestService_VerifyFailures(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, c, &fakeRecorder{})
	p := testPrincipal()

	sign := func(secret string, mutate func(*Claims)) string {
		claims := &Claims{
			UserID: p.ID,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "multi-cloud-dashboard",
				Audience:  jwt.ClaimStrings{"dashboard-api"},
				IssuedAt:  jwt.NewNumericDate(c.t),
				ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
			},
		}
		if mutate != nil {
			mutate(claims)
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	first, _, err := svc.Issue(context.Background(), p)
	require.NoError(t, err)
	second, _, err := svc.Issue(context.Background(), models.NewPrincipal("bob", "bob@example.com", "", models.RoleSuperAdmin, ""))
	require.NoError(t, err)
	a, b := strings.Split(first, "."), strings.Split(second, ".")
	spliced := a[0] + "." + b[1] + "." + a[2]

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty token", "", ErrMissing},
		{"garbage", "not-a-token", ErrMalformed},
		{"wrong secret", sign("other-secret", nil), ErrBadSignature},
		{"payload swapped under old signature", spliced, ErrBadSignature},
		{"wrong audience", sign("test-secret", func(c *Claims) { c.Audience = jwt.ClaimStrings{"someone-else"} }), ErrWrongAudience},
		{"wrong issuer", sign("test-secret", func(c *Claims) { c.Issuer = "evil" }), ErrWrongIssuer},
		{"no expiry", sign("test-secret", func(c *Claims) { c.ExpiresAt = nil }), ErrMalformed},
		{"none algorithm", func() string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": p.ID}).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return s
		}(), ErrBadSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Verify(context.Background(), tt.token)
			assert.Nil(t, claims)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, services.IsUnauthorizedError(err))
		})
	}
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(Config{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestService_IssueNilPrincipal(t *testing.T) {
	svc := newTestService(t, &clock{t: time.Now()}, &fakeRecorder{})
	_, _, err := svc.Issue(context.Background(), nil)
	assert.True(t, services.IsValidationError(err))
}
