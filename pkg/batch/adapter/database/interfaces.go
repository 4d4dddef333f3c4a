// Package database defines the database connection abstractions used by the pipeline and the
// API, independently of the ORM that implements them.
package database

import (
	"context"
	"database/sql"
	"errors"

	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	"github.com/tigerroll/bulkload/pkg/batch/core/tx"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Condition is a raw SQL predicate with positional arguments, e.g. {"title LIKE ?", "%x%"}.
type Condition struct {
	SQL  string
	Args []interface{}
}

// Query describes a read. Where entries and Conditions are combined with AND.
type Query struct {
	Where      map[string]interface{}
	Conditions []Condition
	OrderBy    string
	Limit      int
	Offset     int
}

// DBExecutor defines the read and write operations available on a connection.
type DBExecutor interface {
	tx.TxExecutor

	// ExecuteQuery loads every row matching q into target (a pointer to a slice).
	ExecuteQuery(ctx context.Context, target interface{}, q Query) error
	// FindOne loads the first row matching where into target, or returns ErrNotFound.
	FindOne(ctx context.Context, target interface{}, where map[string]interface{}) error
	// Count counts the rows of model's table matching where.
	Count(ctx context.Context, model interface{}, where map[string]interface{}) (int64, error)
	// QueryRow runs a raw single-row query and scans it into dest, or returns ErrNotFound.
	QueryRow(ctx context.Context, stmt string, args []interface{}, dest ...interface{}) error
	// ProbeTable checks that table exists and is readable without scanning any row.
	ProbeTable(ctx context.Context, table string) error
}

// Session is one pooled connection checked out for exclusive use.
// Session-scoped settings applied through Exec stay on that connection until changed.
type Session interface {
	Exec(ctx context.Context, stmt string, args ...interface{}) error
	// Transaction runs fn in a transaction on this connection, committing if fn returns nil
	// and rolling back otherwise.
	Transaction(ctx context.Context, fn func(tx.Tx) error) error
}

// DBConnection is a named, pooled database handle.
type DBConnection interface {
	DBExecutor

	// Type returns the database type ("mysql", "postgres", "sqlite").
	Type() string
	// Name returns the configured connection name.
	Name() string
	Close() error
	Ping(ctx context.Context) error
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB.
	GetSQLDB() (*sql.DB, error)
	// AutoMigrate creates missing tables and columns for models.
	AutoMigrate(ctx context.Context, models ...interface{}) error
	// WithSession checks out one connection from the pool, passes it to fn and returns it to
	// the pool when fn returns.
	WithSession(ctx context.Context, fn func(Session) error) error
}

// DBConnectionResolver resolves healthy connections by name.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
}

// DBProviderGroup is the Fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
