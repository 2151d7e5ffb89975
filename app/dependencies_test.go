package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/config"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/users"
	"go.uber.org/zap/zaptest"
)

// testConfig returns an in-memory configuration writing logs under t.TempDir
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	strategies := make(map[models.Provider]models.CredentialStrategy, len(models.AllProviders))
	for _, p := range models.AllProviders {
		strategies[p] = models.StrategyEnvironment
	}
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  5 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Auth: config.AuthConfig{
			JWTSecret:              "test-secret",
			JWTExpiry:              time.Hour,
			JWTIssuer:              "multi-cloud-dashboard",
			JWTAudience:            "dashboard-api",
			BootstrapAdminPassword: "bootstrap-pass",
		},
		Credentials: config.CredentialsConfig{
			DefaultStrategy: models.StrategyEnvironment,
			Strategies:      strategies,
			CacheSize:       16,
			CacheTTL:        time.Hour,
			ProbeTimeout:    100 * time.Millisecond,
			ProviderTimeout: 2 * time.Second,
		},
		Clouds: config.CloudConfig{
			AWS: models.AWSCredentials{Region: "us-east-1"},
		},
		Logs: config.LogsConfig{
			AuditPath:  filepath.Join(dir, "audit.log"),
			AccessPath: filepath.Join(dir, "access.log"),
			MaxSizeMB:  1,
			MaxBackups: 1,
		},
		RateLimit:     config.RateLimitConfig{RPS: 100, Burst: 100},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json", MetricsEnabled: true},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("in-memory wiring", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Repos)
		assert.Equal(t, 3, deps.Registry.GetProviderCount())
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.DashboardHandler)
		assert.NotNil(t, deps.RateLimiter)

		// bootstrap super admin
		admin, err := deps.Users.Authenticate(ctx, users.BootstrapUsername, "bootstrap-pass")
		require.NoError(t, err)
		assert.Equal(t, models.RoleSuperAdmin, admin.Role)

		require.NoError(t, deps.Close(ctx))

		// the audit pipeline flushed the bootstrap and login events to disk
		data, err := os.ReadFile(cfg.Logs.AuditPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), string(models.AuditActionUserCreated))
	})

	t.Run("delegated role on azure is rejected", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Credentials.Strategies[models.ProviderAzure] = models.StrategyDelegatedRole

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "credentials")
	})

	t.Run("invalid encryption key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Credentials.EncryptionKey = "not-hex"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
	})

	t.Run("unreachable log directory", func(t *testing.T) {
		cfg := testConfig(t)
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
		cfg.Logs.AuditPath = filepath.Join(blocker, "audit.log")

		_, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}
