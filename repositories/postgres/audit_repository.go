package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements repositories.AuditRepository
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Insert appends an audit event
func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, timestamp, user_id, action, details, ip, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = GetExecutor(ctx, r.db).ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.UserID,
		string(event.Action),
		details,
		event.IPAddress,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	r.logger.Debug("audit event inserted", zap.String("id", event.ID), zap.String("action", string(event.Action)))
	return nil
}
