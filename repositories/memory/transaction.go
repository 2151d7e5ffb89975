package memory

import (
	"context"
	"sync"

	"github.com/upb/multicloud-dashboard/repositories"
)

type transactionContextKey struct{}

// TransactionManager hands out undo-log transactions. Writes made with a
// transaction's Context apply immediately and are reverted on Rollback.
type TransactionManager struct{}

// NewTransactionManager creates a transaction manager for the in-memory stores
func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

// Begin starts a new transaction
func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	t := &transaction{}
	t.ctx = context.WithValue(ctx, transactionContextKey{}, t)
	return t, nil
}

type transaction struct {
	mu   sync.Mutex
	ctx  context.Context
	undo []func()
	done bool
}

func (t *transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo, t.done = nil, true
	return nil
}

// Rollback reverts the recorded writes newest first. Rolling back a
// finished transaction is a no-op.
func (t *transaction) Rollback() error {
	t.mu.Lock()
	undo := t.undo
	t.undo, t.done = nil, true
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

func (t *transaction) Context() context.Context { return t.ctx }

// onRollback registers fn with the transaction carried by ctx, if any
func onRollback(ctx context.Context, fn func()) {
	t, ok := ctx.Value(transactionContextKey{}).(*transaction)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		t.undo = append(t.undo, fn)
	}
}
