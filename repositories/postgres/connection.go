package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/multicloud-dashboard/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{DB: db, logger: logger}, nil
}

// WrapDB wraps an already opened pool
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck pings the database and runs a trivial query
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}
	return nil
}

// Schema creates the dashboard tables
const Schema = `
CREATE TABLE IF NOT EXISTS principals (
	id UUID PRIMARY KEY,
	username VARCHAR(64) NOT NULL,
	email VARCHAR(255) NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	role VARCHAR(32) NOT NULL,
	custom_permissions TEXT[] NOT NULL DEFAULT '{}',
	is_active BOOLEAN NOT NULL DEFAULT true,
	provider VARCHAR(32) NOT NULL DEFAULT 'local',
	created_by VARCHAR(64) NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_username ON principals (lower(username));
CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_email ON principals (lower(email));

CREATE TABLE IF NOT EXISTS credential_records (
	principal_id UUID NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
	provider VARCHAR(16) NOT NULL,
	method VARCHAR(32) NOT NULL,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (principal_id, provider)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	user_id VARCHAR(64) NOT NULL,
	action VARCHAR(64) NOT NULL,
	details JSONB NOT NULL DEFAULT '{}',
	ip VARCHAR(64) NOT NULL DEFAULT 'unknown',
	request_id VARCHAR(128) NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events (user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events (action, timestamp DESC);
`

// InitSchema creates the tables if they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	db.logger.Info("database schema initialized")
	return nil
}
