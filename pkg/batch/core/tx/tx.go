// Package tx abstracts database transactions so writers can run the same way against any
// backend: open a transaction, write through Tx, then commit or roll back as one unit.
package tx

import (
	"context"
	"database/sql"
)

// Operations accepted by TxExecutor.ExecuteUpdate.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// TxExecutor defines the write operations available inside a transaction.
type TxExecutor interface {
	// ExecuteInsert inserts rows (a slice of entities) into tableName as multi-row INSERT
	// statements of at most batchSize rows each. batchSize <= 0 writes a single statement.
	ExecuteInsert(ctx context.Context, rows interface{}, tableName string, batchSize int) (rowsAffected int64, err error)

	// ExecuteUpdate performs a CREATE, UPDATE or DELETE of model.
	// UPDATE writes every column of model keyed by its primary key; DELETE removes the rows
	// matching query (combined with AND).
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// Exec runs a raw statement.
	Exec(ctx context.Context, stmt string, args ...interface{}) error
}

// Tx represents an ongoing database transaction.
type Tx interface {
	TxExecutor
}

// TransactionManager manages the lifecycle of transactions.
type TransactionManager interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit persists every change made in t.
	Commit(t Tx) error
	// Rollback discards every change made in t.
	Rollback(t Tx) error
}

// RunInTransaction begins a transaction, calls fn, and commits if fn succeeds.
// Any error from fn, or a panic, rolls the transaction back; the rollback error, if any, is
// secondary to the original and only the original is returned.
func RunInTransaction(ctx context.Context, tm TransactionManager, fn func(Tx) error) (err error) {
	t, err := tm.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tm.Rollback(t)
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(t); err != nil {
		return err
	}
	if err := tm.Commit(t); err != nil {
		// Commit failed: the transaction is finished either way, skip the deferred rollback.
		committed = true
		return err
	}
	committed = true
	return nil
}
