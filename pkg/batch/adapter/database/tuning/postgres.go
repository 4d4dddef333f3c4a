package tuning

import (
	"context"
	"strconv"
	"strings"
)

// PostgresTuner tunes PostgreSQL. synchronous_commit stands in for the InnoDB flush level and
// session_replication_role = replica suppresses foreign key triggers. ALTER SYSTEM needs
// superuser.
type PostgresTuner struct {
	ex Executor
}

// NewPostgresTuner creates a PostgresTuner.
func NewPostgresTuner(ex Executor) *PostgresTuner {
	return &PostgresTuner{ex: ex}
}

func (*PostgresTuner) Engine() string { return "postgres" }

func (t *PostgresTuner) EnterBulkMode(ctx context.Context) error {
	return execAll(ctx, t.ex, "ALTER SYSTEM SET synchronous_commit = off", "SELECT pg_reload_conf()")
}

func (t *PostgresTuner) RestoreSafeMode(ctx context.Context) error {
	return execAll(ctx, t.ex, "ALTER SYSTEM RESET synchronous_commit", "SELECT pg_reload_conf()")
}

// SessionStatements ignores Autocommit and UniqueChecks; PostgreSQL has no session switch for
// either.
func (*PostgresTuner) SessionStatements(s EngineSettings) []string {
	if s.ForeignKeyChecks {
		return []string{"SET session_replication_role = DEFAULT"}
	}
	return []string{"SET session_replication_role = replica"}
}

func (t *PostgresTuner) Diagnostics(ctx context.Context) (Diagnostic, error) {
	var value string
	if err := t.ex.QueryRow(ctx, "SHOW shared_buffers", nil, &value); err != nil {
		return Diagnostic{}, err
	}
	return Diagnostic{Name: "shared_buffers", Value: value, Bytes: parsePgSize(value)}, nil
}

// parsePgSize parses sizes such as "128MB" or "8kB". Returns -1 if value has no known unit.
func parsePgSize(value string) int64 {
	units := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"kB", 1 << 10}, {"B", 1},
	}
	v := strings.TrimSpace(value)
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(v, u.suffix)), 10, 64)
			if err != nil {
				return -1
			}
			return n * u.mult
		}
	}
	return -1
}
