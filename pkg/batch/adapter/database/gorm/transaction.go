package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx over an open GORM transaction.
type GormTxAdapter struct {
	executor
}

// NewGormTxAdapter wraps a *gorm.DB returned by Begin.
func NewGormTxAdapter(db *gorm.DB) *GormTxAdapter {
	return &GormTxAdapter{executor: executor{db: db}}
}

// GormTransactionManager implements tx.TransactionManager for a named connection,
// resolving it on every Begin so a reconnected pool is picked up.
type GormTransactionManager struct {
	resolver database.DBConnectionResolver
	dbName   string
}

// NewGormTransactionManager creates a transaction manager for the connection dbName.
func NewGormTransactionManager(resolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{resolver: resolver, dbName: dbName}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.resolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, err
	}
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is %T, not a GORM connection", m.dbName, conn)
	}
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gtx := adapter.db.WithContext(ctx).Begin(txOpts)
	if gtx.Error != nil {
		return nil, gtx.Error
	}
	return NewGormTxAdapter(gtx), nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	a, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", t)
	}
	return a.db.Commit().Error
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	a, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", t)
	}
	return a.db.Rollback().Error
}

var (
	_ tx.Tx                 = (*GormTxAdapter)(nil)
	_ tx.TransactionManager = (*GormTransactionManager)(nil)
)
