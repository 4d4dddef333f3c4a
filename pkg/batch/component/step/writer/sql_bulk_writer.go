// Package writer provides item writers that persist batches to external systems.
package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// MaxPlaceholders is the largest number of bind parameters one MySQL or PostgreSQL statement
// may carry.
const MaxPlaceholders = 65535

// MaxSQLitePlaceholders is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const MaxSQLitePlaceholders = 32766

// MaxPlaceholdersFor returns the bind parameter limit of the given database type.
func MaxPlaceholdersFor(dbType string) int {
	if dbType == "sqlite" {
		return MaxSQLitePlaceholders
	}
	return MaxPlaceholders
}

// SqlBulkWriter writes items as multi-row INSERT statements inside a caller-owned transaction.
// It never begins, commits or rolls back; the caller decides the unit of atomicity.
type SqlBulkWriter[T any] struct {
	name      string // name is used for logging.
	bulkSize  int    // bulkSize is the maximum number of rows per INSERT statement.
	tableName string // tableName overrides the entity's table when set.
}

// NewSqlBulkWriter creates a SqlBulkWriter. A bulkSize <= 0 writes every call as one statement.
func NewSqlBulkWriter[T any](name string, bulkSize int, tableName string) *SqlBulkWriter[T] {
	return &SqlBulkWriter[T]{
		name:      name,
		bulkSize:  bulkSize,
		tableName: tableName,
	}
}

// BulkSizeFor returns the largest bulk size whose statements stay within the placeholder limit
// of dbType for rows of the given column count, capped at want.
func BulkSizeFor(dbType string, columns, want int) int {
	limit := MaxPlaceholdersFor(dbType) / columns
	if want <= 0 || want > limit {
		return limit
	}
	return want
}

// Write inserts items through t and returns the number of rows affected.
func (w *SqlBulkWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	n, err := t.ExecuteInsert(ctx, &items, w.tableName, w.bulkSize)
	if err != nil {
		return n, fmt.Errorf("SqlBulkWriter '%s': insert of %d rows failed: %w", w.name, len(items), err)
	}
	logger.Debugf("SqlBulkWriter '%s': Wrote %d items.", w.name, len(items))
	return n, nil
}

// GetResourcePath returns the target table name, or "" when the entity's own table is used.
func (w *SqlBulkWriter[T]) GetResourcePath() string {
	return w.tableName
}
