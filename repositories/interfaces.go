package repositories

import (
	"context"
	"errors"

	"github.com/upb/multicloud-dashboard/models"
)

// Store-level sentinels. Services translate these into domain errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages store transactions
type TransactionManager interface {
	// Begin starts a new transaction. Repository calls made with the
	// transaction's Context join it.
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a store transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// PrincipalRepository handles principal data operations.
// Implementations return copies; callers never share mutable state with the store.
type PrincipalRepository interface {
	// Create inserts a principal. Returns ErrDuplicate when the username or email is taken.
	Create(ctx context.Context, p *models.Principal) error

	// GetByID retrieves a principal by ID
	GetByID(ctx context.Context, id string) (*models.Principal, error)

	// GetByUsername retrieves a principal by username (case-insensitive)
	GetByUsername(ctx context.Context, username string) (*models.Principal, error)

	// GetByEmail retrieves a principal by email (case-insensitive)
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)

	// List returns every principal ordered by creation time
	List(ctx context.Context) ([]*models.Principal, error)

	// Update replaces a stored principal
	Update(ctx context.Context, p *models.Principal) error

	// Delete removes a principal
	Delete(ctx context.Context, id string) error

	// CountActiveByRole counts active principals holding role. Inside a
	// transaction the counted rows stay locked until it ends.
	CountActiveByRole(ctx context.Context, role models.Role) (int, error)
}

// CredentialRepository stores user-supplied credential records.
// Records are replaced wholesale, never partially updated.
type CredentialRepository interface {
	// Put stores or replaces the record for (PrincipalID, Provider)
	Put(ctx context.Context, rec *models.CredentialRecord) error

	// Get retrieves the record for a principal and provider
	Get(ctx context.Context, principalID string, provider models.Provider) (*models.CredentialRecord, error)

	// ListByPrincipal returns all records owned by a principal
	ListByPrincipal(ctx context.Context, principalID string) ([]*models.CredentialRecord, error)

	// Delete removes one record
	Delete(ctx context.Context, principalID string, provider models.Provider) error

	// DeleteByPrincipal removes all records owned by a principal
	DeleteByPrincipal(ctx context.Context, principalID string) error
}

// AuditRepository is the append-only audit event sink
type AuditRepository interface {
	// Insert appends an audit event
	Insert(ctx context.Context, event *models.AuditEvent) error
}

// AccessLogRepository is the append-only HTTP access log sink
type AccessLogRepository interface {
	// InsertAccess appends an access log entry
	InsertAccess(ctx context.Context, entry *models.AccessLogEntry) error
}

// Repositories holds all repository instances
type Repositories struct {
	Principals  PrincipalRepository
	Credentials CredentialRepository
	Tx          TransactionManager
}
