package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

const principalColumns = `id, username, email, password_hash, role, custom_permissions,
	is_active, provider, created_by, created_at, updated_at, last_login`

// PrincipalRepository implements repositories.PrincipalRepository
type PrincipalRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB, logger *zap.Logger) repositories.PrincipalRepository {
	return &PrincipalRepository{db: db, logger: logger}
}

// Create inserts a principal
func (r *PrincipalRepository) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, principalArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", translate(err))
	}

	r.logger.Debug("principal created", zap.String("id", p.ID))
	return nil
}

// GetByID retrieves a principal by ID
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
}

// GetByUsername retrieves a principal by username (case-insensitive)
func (r *PrincipalRepository) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE lower(username) = lower($1)`, username)
}

// GetByEmail retrieves a principal by email (case-insensitive)
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`, email)
}

func (r *PrincipalRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Principal, error) {
	p, err := scanPrincipal(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", translate(err))
	}
	return p, nil
}

// List returns every principal ordered by creation time
func (r *PrincipalRepository) List(ctx context.Context) ([]*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals ORDER BY created_at, username`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var out []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating principals: %w", err)
	}
	return out, nil
}

// Update replaces a stored principal
func (r *PrincipalRepository) Update(ctx context.Context, p *models.Principal) error {
	query := `
		UPDATE principals
		SET username = $2, email = $3, password_hash = $4, role = $5, custom_permissions = $6,
		    is_active = $7, provider = $8, created_by = $9, created_at = $10, updated_at = $11, last_login = $12
		WHERE id = $1
	`

	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, principalArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to update principal: %w", translate(err))
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	r.logger.Debug("principal updated", zap.String("id", p.ID))
	return nil
}

// Delete removes a principal
func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	r.logger.Debug("principal deleted", zap.String("id", id))
	return nil
}

// CountActiveByRole counts active principals holding role. The rows are
// selected FOR UPDATE so a transaction holds them until it ends.
func (r *PrincipalRepository) CountActiveByRole(ctx context.Context, role models.Role) (int, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx,
		`SELECT id FROM principals WHERE role = $1 AND is_active FOR UPDATE`, string(role))
	if err != nil {
		return 0, fmt.Errorf("failed to count principals: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count principals: %w", err)
	}
	return n, nil
}

func principalArgs(p *models.Principal) []interface{} {
	perms := make([]string, len(p.CustomPermissions))
	for i, perm := range p.CustomPermissions {
		perms[i] = string(perm)
	}
	var lastLogin sql.NullTime
	if p.LastLogin != nil {
		lastLogin = sql.NullTime{Time: *p.LastLogin, Valid: true}
	}
	return []interface{}{
		p.ID,
		p.Username,
		p.Email,
		p.PasswordHash,
		string(p.Role),
		pq.Array(perms),
		p.Active,
		p.Provider,
		p.CreatedBy,
		p.CreatedAt,
		p.UpdatedAt,
		lastLogin,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	var (
		p         models.Principal
		role      string
		perms     []string
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Email,
		&p.PasswordHash,
		&role,
		pq.Array(&perms),
		&p.Active,
		&p.Provider,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	p.CustomPermissions = make([]models.Permission, len(perms))
	for i, perm := range perms {
		p.CustomPermissions[i] = models.Permission(perm)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLogin = &t
	}
	return &p, nil
}
