package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"github.com/upb/multicloud-dashboard/repositories/memory"
)

// MockTransactionManager is a mock implementation of TransactionManager
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTransaction is a mock implementation of Transaction
type MockTransaction struct {
	mock.Mock
	ctx context.Context
}

func (m *MockTransaction) Commit() error   { return m.Called().Error(0) }
func (m *MockTransaction) Rollback() error { return m.Called().Error(0) }

func (m *MockTransaction) Context() context.Context { return m.ctx }

// seedPrincipal stores an admin with one AWS credential record
func seedPrincipal(t *testing.T, repos *repositories.Repositories) *models.Principal {
	t.Helper()
	ctx := context.Background()
	p := models.NewPrincipal("ops", "ops@example.com", "hash", models.RoleAdmin, "")
	require.NoError(t, repos.Principals.Create(ctx, p))
	require.NoError(t, repos.Credentials.Put(ctx, &models.CredentialRecord{
		PrincipalID: p.ID, Provider: models.ProviderAWS, AccessKeyID: "AKIA1",
	}))
	return p
}

func TestWithTransaction_CommitsPrincipalRemoval(t *testing.T) {
	repos := memory.NewRepositories()
	p := seedPrincipal(t, repos)

	err := WithTransaction(context.Background(), repos.Tx, func(ctx context.Context) error {
		if err := repos.Credentials.DeleteByPrincipal(ctx, p.ID); err != nil {
			return err
		}
		return repos.Principals.Delete(ctx, p.ID)
	})
	require.NoError(t, err)

	_, err = repos.Principals.GetByID(context.Background(), p.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	recs, err := repos.Credentials.ListByPrincipal(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWithTransaction_RollsBackCredentialRemoval(t *testing.T) {
	repos := memory.NewRepositories()
	p := seedPrincipal(t, repos)

	err := WithTransaction(context.Background(), repos.Tx, func(ctx context.Context) error {
		if err := repos.Credentials.DeleteByPrincipal(ctx, p.ID); err != nil {
			return err
		}
		// a principal that is not stored fails the second step
		return repos.Principals.Delete(ctx, "missing")
	})
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	rec, err := repos.Credentials.Get(context.Background(), p.ID, models.ProviderAWS)
	require.NoError(t, err)
	assert.Equal(t, "AKIA1", rec.AccessKeyID)
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	repos := memory.NewRepositories()
	p := seedPrincipal(t, repos)

	assert.Panics(t, func() {
		_ = WithTransaction(context.Background(), repos.Tx, func(ctx context.Context) error {
			_ = repos.Principals.Delete(ctx, p.ID)
			panic("store exploded")
		})
	})

	_, err := repos.Principals.GetByID(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestWithTransaction_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("begin error", func(t *testing.T) {
		txMgr := new(MockTransactionManager)
		txMgr.On("Begin", ctx).Return(nil, errors.New("connection refused"))

		called := false
		err := WithTransaction(ctx, txMgr, func(context.Context) error {
			called = true
			return nil
		})
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.False(t, called)
	})

	t.Run("commit error rolls back", func(t *testing.T) {
		tx := &MockTransaction{ctx: ctx}
		tx.On("Commit").Return(errors.New("serialization failure"))
		tx.On("Rollback").Return(nil)
		txMgr := new(MockTransactionManager)
		txMgr.On("Begin", ctx).Return(tx, nil)

		err := WithTransaction(ctx, txMgr, func(context.Context) error { return nil })
		assert.ErrorContains(t, err, "failed to commit transaction")
		tx.AssertExpectations(t)
	})

	t.Run("rollback error keeps the cause", func(t *testing.T) {
		cause := errors.New("delete failed")
		tx := &MockTransaction{ctx: ctx}
		tx.On("Rollback").Return(errors.New("connection lost"))
		txMgr := new(MockTransactionManager)
		txMgr.On("Begin", ctx).Return(tx, nil)

		err := WithTransaction(ctx, txMgr, func(context.Context) error { return cause })
		assert.ErrorIs(t, err, cause)
		assert.ErrorContains(t, err, "rollback failed: connection lost")
		tx.AssertNotCalled(t, "Commit")
	})

	t.Run("fn receives the transaction context", func(t *testing.T) {
		type key struct{}
		txCtx := context.WithValue(ctx, key{}, "tx")
		tx := &MockTransaction{ctx: txCtx}
		tx.On("Commit").Return(nil)
		txMgr := new(MockTransactionManager)
		txMgr.On("Begin", ctx).Return(tx, nil)

		var seen interface{}
		err := WithTransaction(ctx, txMgr, func(ctx context.Context) error {
			seen = ctx.Value(key{})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "tx", seen)
		tx.AssertNotCalled(t, "Rollback")
	})
}
