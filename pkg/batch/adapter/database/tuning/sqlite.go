package tuning

import (
	"context"
	"strconv"
)

// SQLiteTuner tunes SQLite. It has no global settings; synchronous and foreign_keys are
// per connection.
type SQLiteTuner struct {
	ex Executor
}

// NewSQLiteTuner creates a SQLiteTuner.
func NewSQLiteTuner(ex Executor) *SQLiteTuner {
	return &SQLiteTuner{ex: ex}
}

func (*SQLiteTuner) Engine() string { return "sqlite" }

func (*SQLiteTuner) EnterBulkMode(context.Context) error { return nil }

func (*SQLiteTuner) RestoreSafeMode(context.Context) error { return nil }

func (*SQLiteTuner) SessionStatements(s EngineSettings) []string {
	sync := "FULL"
	if s.FlushLogAtTrxCommit != 1 {
		sync = "OFF"
	}
	return []string{
		"PRAGMA foreign_keys = " + strconv.Itoa(onOff(s.ForeignKeyChecks)),
		"PRAGMA synchronous = " + sync,
	}
}

// Diagnostics reports the page cache size. A negative cache_size is a size in KiB; a positive
// one is a page count and is reported without Bytes.
func (t *SQLiteTuner) Diagnostics(ctx context.Context) (Diagnostic, error) {
	var n int64
	if err := t.ex.QueryRow(ctx, "PRAGMA cache_size", nil, &n); err != nil {
		return Diagnostic{}, err
	}
	d := Diagnostic{Name: "cache_size", Value: strconv.FormatInt(n, 10), Bytes: -1}
	if n < 0 {
		d.Bytes = -n * 1024
	}
	return d, nil
}
