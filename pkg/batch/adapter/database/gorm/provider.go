package gorm

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

const moduleName = "database"

// DialectorFactory builds the gorm.Dialector for one configured database.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorsMu sync.RWMutex
	dialectors   = map[string]DialectorFactory{}
)

// RegisterDialector makes factory the dialector source for dbType. Dialect packages call it
// from init; a later registration replaces an earlier one.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorsMu.Lock()
	defer dialectorsMu.Unlock()
	if _, dup := dialectors[dbType]; dup {
		logger.Warnf("Replacing dialector for database type %q.", dbType)
	}
	dialectors[dbType] = factory
}

func dialectorFor(dbType string) (DialectorFactory, error) {
	dialectorsMu.RLock()
	defer dialectorsMu.RUnlock()
	if f, ok := dialectors[dbType]; ok {
		return f, nil
	}
	return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig, "unsupported database type %q", dbType)
}

// DecodeDatabaseConfig decodes the raw bulkload.database.<name> entry. String values coming
// from environment overrides are converted to the field types.
func DecodeDatabaseConfig(cfg *config.Config, name string) (dbconfig.DatabaseConfig, error) {
	var dbConfig dbconfig.DatabaseConfig
	raw, ok := cfg.Bulkload.AdapterConfigs[name]
	if !ok {
		return dbConfig, exception.NewBatchErrorf(moduleName, exception.KindConfig, "database configuration '%s' not found", name)
	}
	if err := configbinder.Bind(raw, &dbConfig); err != nil {
		return dbConfig, exception.NewBatchErrorf(moduleName, exception.KindConfig, "failed to decode database config for '%s'", name, err)
	}
	return dbConfig, nil
}

// BaseProvider opens and caches GORM connections of one database type.
type BaseProvider struct {
	cfg         *config.Config
	dbType      string
	connections map[string]database.DBConnection
	mu          sync.RWMutex
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		dbType:      dbType,
		connections: make(map[string]database.DBConnection),
	}
}

// Type returns the database type.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(name)
}

func (p *BaseProvider) createAndStoreConnection(name string) (database.DBConnection, error) {
	dbConfig, err := DecodeDatabaseConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if dbConfig.Type != p.dbType {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig,
			"provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, dbConfig.Type, name)
	}

	gormDB, err := Open(dbConfig)
	if err != nil {
		return nil, database.ClassifyError(moduleName, fmt.Sprintf("failed to open connection '%s'", name), err)
	}

	conn := NewGormDBAdapter(gormDB, dbConfig, name)
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// ForceReconnect closes the named connection, if open, and opens it again.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.connections[name]; ok {
		if err := existing.Close(); err != nil {
			logger.Warnf("Failed to close existing connection '%s' before reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	conn, err := p.createAndStoreConnection(name)
	if err != nil {
		return nil, err
	}
	logger.Infof("Re-established DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

// Open opens a GORM connection for dbConfig using the registered dialector and applies the
// pool settings.
func Open(dbConfig dbconfig.DatabaseConfig) (*gorm.DB, error) {
	build, err := dialectorFor(dbConfig.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := build(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(dbConfig.LogLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dbConfig.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	}
	if dbConfig.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	}
	if dbConfig.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}
