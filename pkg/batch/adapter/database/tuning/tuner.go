// Package tuning switches a database engine between a durability-relaxed bulk profile and its
// normal safe profile.
//
// Settings come in two scopes. Global settings (e.g. InnoDB log flushing) are changed once per
// run through Acquire. Session settings (autocommit, unique and foreign key checks) only affect
// the connection that ran them, so loaders apply SessionStatements on the connection they
// check out and restore the safe profile before returning it to the pool.
package tuning

import (
	"context"
	"fmt"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

const moduleName = "tuning"

// EngineSettings is one engine profile.
type EngineSettings struct {
	Autocommit       bool
	UniqueChecks     bool
	ForeignKeyChecks bool
	// FlushLogAtTrxCommit is the InnoDB durability level: 1 flushes on every commit, 2 flushes
	// about once a second.
	FlushLogAtTrxCommit int
}

// BulkMode relaxes durability and integrity checks for fast loading.
var BulkMode = EngineSettings{
	Autocommit:          false,
	UniqueChecks:        false,
	ForeignKeyChecks:    false,
	FlushLogAtTrxCommit: 2,
}

// SafeMode is the engine's normal, fully durable profile.
var SafeMode = EngineSettings{
	Autocommit:          true,
	UniqueChecks:        true,
	ForeignKeyChecks:    true,
	FlushLogAtTrxCommit: 1,
}

// Diagnostic is a read-only engine setting reported before a run.
type Diagnostic struct {
	Name  string
	Value string
	// Bytes is the setting in bytes, or -1 when it could not be derived from Value.
	Bytes int64
}

// String formats d for logs.
func (d Diagnostic) String() string {
	if d.Bytes < 0 {
		return fmt.Sprintf("%s=%s", d.Name, d.Value)
	}
	return fmt.Sprintf("%s=%.2f GB", d.Name, float64(d.Bytes)/(1<<30))
}

// Executor is the subset of a connection a Tuner needs.
type Executor interface {
	Exec(ctx context.Context, stmt string, args ...interface{}) error
	QueryRow(ctx context.Context, stmt string, args []interface{}, dest ...interface{}) error
}

// Tuner switches one engine between BulkMode and SafeMode.
type Tuner interface {
	// Engine returns the database type tuned.
	Engine() string
	// EnterBulkMode applies the global part of BulkMode.
	EnterBulkMode(ctx context.Context) error
	// RestoreSafeMode applies the global part of SafeMode.
	RestoreSafeMode(ctx context.Context) error
	// SessionStatements returns the statements that apply the session part of s.
	SessionStatements(s EngineSettings) []string
	// Diagnostics reads the engine's buffer pool setting.
	Diagnostics(ctx context.Context) (Diagnostic, error)
}

// NewTuner returns the Tuner for conn's database type.
func NewTuner(conn database.DBConnection) (Tuner, error) {
	switch conn.Type() {
	case "mysql":
		return NewMySQLTuner(conn), nil
	case "postgres":
		return NewPostgresTuner(conn), nil
	case "sqlite":
		return NewSQLiteTuner(conn), nil
	default:
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig, "no tuner for database type %q", conn.Type())
	}
}

// ApplySession runs the session statements of s on one session.
func ApplySession(ctx context.Context, t Tuner, s database.Session, settings EngineSettings) error {
	for _, stmt := range t.SessionStatements(settings) {
		if err := s.Exec(ctx, stmt); err != nil {
			return database.ClassifyError(moduleName, fmt.Sprintf("failed to apply %q", stmt), err)
		}
	}
	return nil
}

func execAll(ctx context.Context, ex Executor, stmts ...string) error {
	for _, stmt := range stmts {
		if err := ex.Exec(ctx, stmt); err != nil {
			return database.ClassifyError(moduleName, fmt.Sprintf("failed to apply %q", stmt), err)
		}
	}
	return nil
}

func onOff(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NopTuner changes nothing. Acquire with a NopTuner still serializes runs on the engine name.
type NopTuner struct{}

func (NopTuner) Engine() string                             { return "none" }
func (NopTuner) EnterBulkMode(context.Context) error        { return nil }
func (NopTuner) RestoreSafeMode(context.Context) error      { return nil }
func (NopTuner) SessionStatements(EngineSettings) []string  { return nil }
func (NopTuner) Diagnostics(context.Context) (Diagnostic, error) {
	return Diagnostic{Name: "none", Bytes: -1}, nil
}
