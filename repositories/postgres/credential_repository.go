package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

// CredentialRepository implements repositories.CredentialRepository. The
// record, whose secret fields are already sealed, is stored as JSONB.
type CredentialRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCredentialRepository creates a new credential record repository
func NewCredentialRepository(db *DB, logger *zap.Logger) repositories.CredentialRepository {
	return &CredentialRepository{db: db, logger: logger}
}

// Put stores or replaces the record for (PrincipalID, Provider)
func (r *CredentialRepository) Put(ctx context.Context, rec *models.CredentialRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode credential record: %w", err)
	}

	query := `
		INSERT INTO credential_records (principal_id, provider, method, record, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal_id, provider)
		DO UPDATE SET method = EXCLUDED.method, record = EXCLUDED.record, created_at = EXCLUDED.created_at
	`
	_, err = GetExecutor(ctx, r.db).ExecContext(ctx, query,
		rec.PrincipalID, string(rec.Provider), rec.Method, body, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store credential record: %w", translate(err))
	}

	r.logger.Debug("credential record stored",
		zap.String("principal_id", rec.PrincipalID),
		zap.String("provider", string(rec.Provider)))
	return nil
}

// Get retrieves the record for a principal and provider
func (r *CredentialRepository) Get(ctx context.Context, principalID string, provider models.Provider) (*models.CredentialRecord, error) {
	var body []byte
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT record FROM credential_records WHERE principal_id = $1 AND provider = $2`,
		principalID, string(provider)).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential record: %w", translate(err))
	}
	return decodeRecord(body)
}

// ListByPrincipal returns all records owned by a principal
func (r *CredentialRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*models.CredentialRecord, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx,
		`SELECT record FROM credential_records WHERE principal_id = $1 ORDER BY provider`, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credential records: %w", err)
	}
	defer rows.Close()

	var out []*models.CredentialRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan credential record: %w", err)
		}
		rec, err := decodeRecord(body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credential records: %w", err)
	}
	return out, nil
}

// Delete removes one record
func (r *CredentialRepository) Delete(ctx context.Context, principalID string, provider models.Provider) error {
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM credential_records WHERE principal_id = $1 AND provider = $2`,
		principalID, string(provider))
	if err != nil {
		return fmt.Errorf("failed to delete credential record: %w", err)
	}
	return requireAffected(res)
}

// DeleteByPrincipal removes all records owned by a principal
func (r *CredentialRepository) DeleteByPrincipal(ctx context.Context, principalID string) error {
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM credential_records WHERE principal_id = $1`, principalID)
	if err != nil {
		return fmt.Errorf("failed to delete credential records: %w", err)
	}
	return nil
}

func decodeRecord(body []byte) (*models.CredentialRecord, error) {
	var rec models.CredentialRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode credential record: %w", err)
	}
	return &rec, nil
}
