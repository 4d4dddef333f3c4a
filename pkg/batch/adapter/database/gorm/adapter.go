// Package gorm implements the database abstractions on top of GORM, with one dialector per
// supported engine registered by the mysql, postgres and sqlite subpackages.
package gorm

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
)

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	executor
	sqlDB  *sql.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBAdapter wraps an open *gorm.DB.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *GormDBAdapter {
	sqlDB, _ := db.DB()
	return &GormDBAdapter{
		executor: executor{db: db},
		sqlDB:    sqlDB,
		cfg:      cfg,
		dbType:   cfg.Type,
		name:     name,
	}
}

// Close implements database.DBConnection.
func (a *GormDBAdapter) Close() error {
	if a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Close()
}

// Type implements database.DBConnection.
func (a *GormDBAdapter) Type() string {
	return a.dbType
}

// Name implements database.DBConnection.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// Ping implements database.DBConnection.
func (a *GormDBAdapter) Ping(ctx context.Context) error {
	if a.sqlDB == nil {
		return errors.New("no underlying *sql.DB")
	}
	return a.sqlDB.PingContext(ctx)
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, errors.New("no underlying *sql.DB")
	}
	return a.sqlDB, nil
}

// ExecuteQuery implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteQuery(ctx context.Context, target interface{}, q database.Query) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if len(q.Where) > 0 {
		db = db.Where(q.Where)
	}
	for _, c := range q.Conditions {
		db = db.Where(c.SQL, c.Args...)
	}
	if q.OrderBy != "" {
		db = db.Order(q.OrderBy)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db.Find(target).Error
}

// FindOne implements database.DBExecutor.
func (a *GormDBAdapter) FindOne(ctx context.Context, target interface{}, where map[string]interface{}) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if len(where) > 0 {
		db = db.Where(where)
	}
	err := db.First(target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.ErrNotFound
	}
	return err
}

// Count implements database.DBExecutor.
func (a *GormDBAdapter) Count(ctx context.Context, model interface{}, where map[string]interface{}) (int64, error) {
	db := applyTableName(a.db.WithContext(ctx), model)
	if len(where) > 0 {
		db = db.Where(where)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// QueryRow implements database.DBExecutor.
func (a *GormDBAdapter) QueryRow(ctx context.Context, stmt string, args []interface{}, dest ...interface{}) error {
	err := a.db.WithContext(ctx).Raw(stmt, args...).Row().Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	return err
}

// ProbeTable implements database.DBExecutor. The dialector quotes table.
func (a *GormDBAdapter) ProbeTable(ctx context.Context, table string) error {
	var n int64
	return a.db.WithContext(ctx).Table(table).Where("1 = 0").Count(&n).Error
}

// AutoMigrate implements database.DBConnection.
func (a *GormDBAdapter) AutoMigrate(ctx context.Context, models ...interface{}) error {
	return a.db.WithContext(ctx).AutoMigrate(models...)
}

// WithSession implements database.DBConnection.
func (a *GormDBAdapter) WithSession(ctx context.Context, fn func(database.Session) error) error {
	return a.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&gormSession{db: conn})
	})
}

// gormSession is a database.Session over a connection pinned by (*gorm.DB).Connection.
type gormSession struct {
	db *gorm.DB
}

func (s *gormSession) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return s.db.WithContext(ctx).Exec(stmt, args...).Error
}

func (s *gormSession) Transaction(ctx context.Context, fn func(tx.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&GormTxAdapter{executor: executor{db: gtx}})
	})
}

var (
	_ database.DBConnection = (*GormDBAdapter)(nil)
	_ database.Session      = (*gormSession)(nil)
)
