package gorm

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
)

// TableNamer represents a struct that has a TableName() string method.
type TableNamer interface {
	TableName() string
}

// applyTableName points db at model's table when model, or its slice element type,
// implements TableNamer; otherwise GORM infers it from the model.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}
	val := reflect.ValueOf(model)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		elemType := val.Type().Elem()
		if elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		if namer, ok := reflect.New(elemType).Interface().(TableNamer); ok {
			return db.Table(namer.TableName())
		}
	}
	return db.Model(model)
}

// executor implements tx.TxExecutor over a *gorm.DB, which may be a pool, a pinned
// connection or an open transaction.
type executor struct {
	db *gorm.DB
}

// session returns db bound to ctx without GORM's implicit per-statement transaction;
// callers own transaction boundaries.
func (e executor) session(ctx context.Context) *gorm.DB {
	return e.db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true})
}

// ExecuteInsert implements tx.TxExecutor.
func (e executor) ExecuteInsert(ctx context.Context, rows interface{}, tableName string, batchSize int) (int64, error) {
	db := e.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}
	var result *gorm.DB
	if batchSize > 0 {
		result = db.CreateInBatches(rows, batchSize)
	} else {
		result = db.Create(rows)
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpdate implements tx.TxExecutor.
func (e executor) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := e.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case tx.OperationCreate:
		result = db.Create(model)
	case tx.OperationUpdate:
		// Select("*") writes zero values too, so UPDATE is a full replacement keyed by the
		// model's primary key.
		db = db.Model(model).Select("*")
		if len(query) > 0 {
			db = db.Where(query)
		}
		result = db.Updates(model)
	case tx.OperationDelete:
		if len(query) > 0 {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Exec implements tx.TxExecutor.
func (e executor) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return e.db.WithContext(ctx).Exec(stmt, args...).Error
}
