package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/multicloud-dashboard/models"
)

// DefaultJWTSecret is the development signing secret. It is rejected in production.
const DefaultJWTSecret = "dev-secret-change-me"

// Config represents the complete application configuration
type Config struct {
	Environment   string
	Server        ServerConfig
	Auth          AuthConfig
	Credentials   CredentialsConfig
	Clouds        CloudConfig
	Database      DatabaseConfig
	Logs          LogsConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// AuthConfig holds token signing and bootstrap account settings
type AuthConfig struct {
	JWTSecret              string
	JWTExpiry              time.Duration
	JWTIssuer              string
	JWTAudience            string
	BootstrapAdminPassword string
}

// CredentialsConfig selects how provider credentials are obtained
type CredentialsConfig struct {
	// DefaultStrategy comes from AUTH_METHOD and applies to providers without an override
	DefaultStrategy models.CredentialStrategy
	// Strategies holds the effective strategy of every provider
	Strategies         map[models.Provider]models.CredentialStrategy
	EncryptionKey      string
	CacheSize          int
	CacheTTL           time.Duration
	ProbeTimeout       time.Duration
	ProviderTimeout    time.Duration
	AssumeRoleDuration time.Duration
}

// CloudConfig holds the process-wide static cloud identities
type CloudConfig struct {
	AWS   models.AWSCredentials
	Azure models.AzureCredentials
	GCP   models.GCPCredentials
}

// DatabaseConfig holds the optional PostgreSQL configuration. When URL is empty
// principals and credential records live in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LogsConfig holds the append-only log file locations
type LogsConfig struct {
	AuditPath  string
	AccessPath string
	MaxSizeMB  int
	MaxBackups int
}

// RateLimitConfig holds the per-client limit applied to the dashboard endpoint
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// strategyEnv maps each provider to its override variable
var strategyEnv = map[models.Provider]string{
	models.ProviderAWS:   "AWS_CREDENTIAL_STRATEGY",
	models.ProviderAzure: "AZURE_CREDENTIAL_STRATEGY",
	models.ProviderGCP:   "GCP_CREDENTIAL_STRATEGY",
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration from the process environment without validating it
func Load() (*Config, error) {
	creds, err := loadCredentialsConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 45*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("JWT_SECRET", ""),
			JWTExpiry:              getEnvAsDuration("JWT_EXPIRY", 24*time.Hour),
			JWTIssuer:              getEnv("JWT_ISSUER", "multi-cloud-dashboard"),
			JWTAudience:            getEnv("JWT_AUDIENCE", "dashboard-api"),
			BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
		Credentials: creds,
		Clouds: CloudConfig{
			AWS: models.AWSCredentials{
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				SessionToken:    getEnv("AWS_SESSION_TOKEN", ""),
				Region:          getEnv("AWS_REGION", "us-east-1"),
			},
			Azure: models.AzureCredentials{
				TenantID:       getEnv("AZURE_TENANT_ID", ""),
				ClientID:       getEnv("AZURE_CLIENT_ID", ""),
				ClientSecret:   getEnv("AZURE_CLIENT_SECRET", ""),
				SubscriptionID: getEnv("AZURE_SUBSCRIPTION_ID", ""),
				StorageAccount: getEnv("AZURE_STORAGE_ACCOUNT", ""),
			},
			GCP: models.GCPCredentials{
				ProjectID: getEnv("GCP_PROJECT_ID", ""),
				KeyFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			},
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Logs: LogsConfig{
			AuditPath:  getEnv("AUDIT_LOG_PATH", "logs/audit.log"),
			AccessPath: getEnv("ACCESS_LOG_PATH", "logs/access.log"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 10),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 2),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = DefaultJWTSecret
	}
	return cfg, nil
}

// loadCredentialsConfig parses the strategy variables once
func loadCredentialsConfig() (CredentialsConfig, error) {
	def, err := models.ParseCredentialStrategy(getEnv("AUTH_METHOD", ""))
	if err != nil {
		return CredentialsConfig{}, fmt.Errorf("AUTH_METHOD: %w", err)
	}

	strategies := make(map[models.Provider]models.CredentialStrategy, len(models.AllProviders))
	for _, p := range models.AllProviders {
		raw := getEnv(strategyEnv[p], "")
		if raw == "" {
			strategies[p] = def
			continue
		}
		s, err := models.ParseCredentialStrategy(raw)
		if err != nil {
			return CredentialsConfig{}, fmt.Errorf("%s: %w", strategyEnv[p], err)
		}
		strategies[p] = s
	}

	return CredentialsConfig{
		DefaultStrategy:    def,
		Strategies:         strategies,
		EncryptionKey:      getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
		CacheSize:          getEnvAsInt("CREDENTIAL_CACHE_SIZE", 1024),
		CacheTTL:           getEnvAsDuration("CREDENTIAL_CACHE_TTL", time.Hour),
		ProbeTimeout:       getEnvAsDuration("IDENTITY_PROBE_TIMEOUT", time.Second),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),
		AssumeRoleDuration: getEnvAsDuration("ASSUME_ROLE_DURATION", time.Hour),
	}, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}

	for p, s := range c.Credentials.Strategies {
		if s == models.StrategyDelegatedRole && p != models.ProviderAWS {
			return fmt.Errorf("%s: delegated-role is only supported for aws", p)
		}
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == DefaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be changed in production")
		}
		if c.Credentials.EncryptionKey == "" {
			return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required in production")
		}
	}

	if c.Credentials.EncryptionKey != "" && len(c.Credentials.EncryptionKey) != 64 {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be 32 bytes hex encoded")
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether a database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// LogString returns a safe string for logging (no credentials)
func (c *DatabaseConfig) LogString() string {
	if c.URL == "" {
		return "in-memory"
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// IsPlaceholder reports whether v is a value copied unchanged from a sample env file
func IsPlaceholder(v string) bool {
	lower := strings.ToLower(strings.TrimSpace(v))
	return strings.HasPrefix(lower, "your_") ||
		strings.HasPrefix(lower, "your-") ||
		(strings.HasPrefix(lower, "<") && strings.HasSuffix(lower, ">"))
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 5000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := getEnv(key, ""); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 5000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" && !IsPlaceholder(value) {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
