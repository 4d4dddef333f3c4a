package tuning

import (
	"context"
	"fmt"
	"strconv"
)

// MySQLTuner tunes MySQL/InnoDB. Changing the global flush setting needs SYSTEM_VARIABLES_ADMIN
// (or SUPER).
type MySQLTuner struct {
	ex Executor
}

// NewMySQLTuner creates a MySQLTuner.
func NewMySQLTuner(ex Executor) *MySQLTuner {
	return &MySQLTuner{ex: ex}
}

func (*MySQLTuner) Engine() string { return "mysql" }

func (t *MySQLTuner) EnterBulkMode(ctx context.Context) error {
	return execAll(ctx, t.ex, flushStatement(BulkMode.FlushLogAtTrxCommit))
}

func (t *MySQLTuner) RestoreSafeMode(ctx context.Context) error {
	return execAll(ctx, t.ex, flushStatement(SafeMode.FlushLogAtTrxCommit))
}

func (*MySQLTuner) SessionStatements(s EngineSettings) []string {
	return []string{
		fmt.Sprintf("SET autocommit = %d", onOff(s.Autocommit)),
		fmt.Sprintf("SET unique_checks = %d", onOff(s.UniqueChecks)),
		fmt.Sprintf("SET foreign_key_checks = %d", onOff(s.ForeignKeyChecks)),
	}
}

func (t *MySQLTuner) Diagnostics(ctx context.Context) (Diagnostic, error) {
	var name, value string
	if err := t.ex.QueryRow(ctx, "SHOW VARIABLES LIKE 'innodb_buffer_pool_size'", nil, &name, &value); err != nil {
		return Diagnostic{}, err
	}
	d := Diagnostic{Name: name, Value: value, Bytes: -1}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		d.Bytes = n
	}
	return d, nil
}

func flushStatement(level int) string {
	return fmt.Sprintf("SET GLOBAL innodb_flush_log_at_trx_commit = %d", level)
}
