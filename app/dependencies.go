package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/multicloud-dashboard/config"
	"github.com/upb/multicloud-dashboard/handlers"
	"github.com/upb/multicloud-dashboard/internal/crypto"
	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"github.com/upb/multicloud-dashboard/repositories/file"
	"github.com/upb/multicloud-dashboard/repositories/memory"
	"github.com/upb/multicloud-dashboard/repositories/postgres"
	"github.com/upb/multicloud-dashboard/services/aggregator"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/services/credentials"
	"github.com/upb/multicloud-dashboard/services/permissions"
	"github.com/upb/multicloud-dashboard/services/providers"
	"github.com/upb/multicloud-dashboard/services/providers/aws"
	"github.com/upb/multicloud-dashboard/services/providers/azure"
	"github.com/upb/multicloud-dashboard/services/providers/gcp"
	"github.com/upb/multicloud-dashboard/services/token"
	"github.com/upb/multicloud-dashboard/services/users"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	DB      *sql.DB

	// Persistence
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	AuditLog    *file.Writer
	AccessLog   *file.Writer

	// Core services
	Audit       *audit.Service
	Permissions *permissions.Engine
	Tokens      *token.Service
	Resolver    *credentials.Resolver
	Records     *credentials.RecordService
	Registry    *providers.Registry
	Aggregator  *aggregator.Service
	Users       *users.Service

	// HTTP layer
	AuthMiddleware *middleware.AuthMiddleware
	RBAC           *middleware.RBAC
	RateLimiter    *middleware.RateLimiter
	Errors         *handlers.ErrorHandler

	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	CredentialHandler *handlers.CredentialHandler
	DashboardHandler  *handlers.DashboardHandler
	HealthHandler     *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	d := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewDefaultMetrics(),
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"storage", d.initStorage},
		{"audit", d.initAudit},
		{"credentials", d.initCredentials},
		{"providers", d.initProviders},
		{"services", d.initServices},
		{"http", d.initHTTP},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			_ = d.Close(ctx)
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("environment", cfg.Environment),
		zap.String("database", cfg.Database.LogString()),
		zap.Int("providers", d.Registry.GetProviderCount()))
	return d, nil
}

// initStorage opens PostgreSQL when configured and falls back to memory
func (d *Dependencies) initStorage(ctx context.Context) error {
	var err error
	d.AuditLog, err = file.NewWriter(file.Config{
		Path:       d.Config.Logs.AuditPath,
		MaxSizeMB:  d.Config.Logs.MaxSizeMB,
		MaxBackups: d.Config.Logs.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	d.AccessLog, err = file.NewWriter(file.Config{
		Path:       d.Config.Logs.AccessPath,
		MaxSizeMB:  d.Config.Logs.MaxSizeMB,
		MaxBackups: d.Config.Logs.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}

	if !d.Config.Database.Enabled() {
		d.Repos = memory.NewRepositories()
		d.Logger.Warn("no database configured, principals and credential records are kept in memory")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(d.Config.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB().DB

	if err := factory.GetDB().InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	d.Repos = factory.NewRepositories()
	return nil
}

// initAudit starts the asynchronous audit pipeline
func (d *Dependencies) initAudit(context.Context) error {
	sinks := auditSinks{d.AuditLog}
	if d.RepoFactory != nil {
		sinks = append(sinks, d.RepoFactory.AuditRepository())
	}
	d.Audit = audit.NewService(sinks, d.Logger, audit.DefaultConfig())
	return d.Audit.Start()
}

// initCredentials builds the per-provider strategies and the resolver
func (d *Dependencies) initCredentials(ctx context.Context) error {
	c := d.Config.Credentials

	var (
		sealer *crypto.Sealer
		err    error
	)
	if c.EncryptionKey != "" {
		sealer, err = crypto.NewSealer(c.EncryptionKey)
	} else {
		d.Logger.Warn("CREDENTIAL_ENCRYPTION_KEY not set, stored credentials will not survive a restart")
		sealer, err = crypto.NewEphemeralSealer()
	}
	if err != nil {
		return fmt.Errorf("credential sealer: %w", err)
	}

	strategies, err := credentials.BuildStrategies(ctx, credentials.StrategyConfig{
		Strategies: c.Strategies,
		Environment: credentials.EnvironmentConfig{
			AWS:   d.Config.Clouds.AWS,
			Azure: d.Config.Clouds.Azure,
			GCP:   d.Config.Clouds.GCP,
		},
		ProbeTimeout: c.ProbeTimeout,
		Delegated: credentials.DelegatedRoleConfig{
			SessionDuration: c.AssumeRoleDuration,
		},
	}, d.Repos.Credentials, sealer, d.Logger)
	if err != nil {
		return err
	}

	cache := credentials.NewCache(c.CacheSize, c.CacheTTL, nil)
	d.Resolver = credentials.NewResolver(strategies, cache, d.Audit, d.Logger, d.Metrics)
	d.Records = credentials.NewRecordService(d.Repos.Credentials, sealer, d.Resolver, d.Audit, d.Logger)
	return nil
}

// initProviders registers one inventory client per cloud
func (d *Dependencies) initProviders(context.Context) error {
	registry := providers.NewRegistry()
	clients := []providers.Client{
		aws.NewClient(d.Resolver, aws.SDKFactory(), d.Config.Clouds.AWS.Region, d.Logger),
		azure.NewClient(d.Resolver, azure.SDKFactory(), d.Logger),
		gcp.NewClient(d.Resolver, gcp.SDKFactory(), d.Logger),
	}
	for _, c := range clients {
		if err := registry.RegisterClient(c); err != nil {
			return fmt.Errorf("register %s client: %w", c.Provider(), err)
		}
		d.Logger.Info("provider client registered", zap.String("provider", string(c.Provider())))
	}
	d.Registry = registry
	return nil
}

// initServices wires the domain services and creates the bootstrap admin
func (d *Dependencies) initServices(ctx context.Context) error {
	d.Permissions = permissions.NewEngine(permissions.DefaultRoleTable())

	tokens, err := token.NewService(token.Config{
		Secret:   d.Config.Auth.JWTSecret,
		Issuer:   d.Config.Auth.JWTIssuer,
		Audience: d.Config.Auth.JWTAudience,
		Expiry:   d.Config.Auth.JWTExpiry,
	}, d.Audit, d.Logger)
	if err != nil {
		return err
	}
	d.Tokens = tokens

	d.Aggregator = aggregator.NewService(d.Registry, d.Audit, d.Logger, d.Metrics, aggregator.Options{
		ProviderTimeout: d.Config.Credentials.ProviderTimeout,
	})

	d.Users = users.NewService(d.Repos, d.Permissions, users.NewBcryptHasher(0), d.Audit, d.Resolver, d.Logger)
	if _, err := d.Users.EnsureBootstrapAdmin(ctx, d.Config.Auth.BootstrapAdminPassword); err != nil {
		return err
	}
	return nil
}

// initHTTP builds the middleware and handlers
func (d *Dependencies) initHTTP(context.Context) error {
	dev := d.Config.IsDevelopment()

	d.Errors = handlers.NewErrorHandler(d.Audit, d.Logger, dev)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.Logger)
	d.RBAC = middleware.NewRBAC(d.Users, d.Permissions, d.Audit, d.Logger)
	d.RateLimiter = middleware.NewRateLimiter(d.Config.RateLimit.RPS, d.Config.RateLimit.Burst, d.Metrics, d.Logger)

	d.AuthHandler = handlers.NewAuthHandler(d.Users, d.Tokens, d.Permissions, d.Audit, d.Errors, d.Logger, d.Config.IsProduction())
	d.UserHandler = handlers.NewUserHandler(d.Users, d.Permissions, d.Errors, d.Logger)
	d.CredentialHandler = handlers.NewCredentialHandler(d.Records, d.Errors, d.Logger)
	d.DashboardHandler = handlers.NewDashboardHandler(d.Aggregator, d.Errors, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.Registry, d.Logger)
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain audit events before closing their sinks
	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	for _, w := range []*file.Writer{d.AuditLog, d.AccessLog} {
		if w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

// auditSinks fans every audit event out to several repositories. The first
// failure is reported after all sinks were tried.
type auditSinks []repositories.AuditRepository

func (s auditSinks) Insert(ctx context.Context, event *models.AuditEvent) error {
	var first error
	for _, sink := range s {
		if err := sink.Insert(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
