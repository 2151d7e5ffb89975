package services

import (
	"context"
	"fmt"

	"github.com/upb/multicloud-dashboard/repositories"
)

// WithTransaction runs fn inside a store transaction. fn receives the
// transaction's context; repository calls made with it join the
// transaction. The transaction commits when fn returns nil and rolls back
// when fn fails or panics.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) (err error) {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
	}()

	if err = fn(tx.Context()); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
