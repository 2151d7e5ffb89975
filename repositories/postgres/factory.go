package postgres

import (
	"github.com/upb/multicloud-dashboard/config"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates the PostgreSQL-backed repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the database described by cfg
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Principals:  NewPrincipalRepository(f.db, f.logger),
		Credentials: NewCredentialRepository(f.db, f.logger),
		Tx:          NewTransactionManager(f.db, f.logger),
	}
}

// AuditRepository returns the audit event sink
func (f *RepositoryFactory) AuditRepository() repositories.AuditRepository {
	return NewAuditRepository(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
