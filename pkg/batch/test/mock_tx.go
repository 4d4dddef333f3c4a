// Package test holds test doubles shared by the batch packages' tests.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
)

// MockTx is a testify mock of tx.Tx.
type MockTx struct {
	mock.Mock
}

// ExecuteInsert records the call and returns the configured row count and error.
func (m *MockTx) ExecuteInsert(ctx context.Context, rows interface{}, tableName string, batchSize int) (int64, error) {
	args := m.Called(ctx, rows, tableName, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

// ExecuteUpdate records the call and returns the configured row count and error.
func (m *MockTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

// Exec records the call and returns the configured error.
func (m *MockTx) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return m.Called(ctx, stmt, args).Error(0)
}

// MockTxManager is a testify mock of tx.TransactionManager.
type MockTxManager struct {
	mock.Mock
}

// Begin returns the configured Tx, or the configured error when the Tx is nil.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

// Commit records the call and returns the configured error.
func (m *MockTxManager) Commit(t tx.Tx) error {
	return m.Called(t).Error(0)
}

// Rollback records the call and returns the configured error.
func (m *MockTxManager) Rollback(t tx.Tx) error {
	return m.Called(t).Error(0)
}

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)
