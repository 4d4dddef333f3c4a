package tuning_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/bulkload/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/tuning"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

func newMySQL(t *testing.T) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, "workload"), mock
}

func TestMySQLTuner_Statements(t *testing.T) {
	tn := tuning.NewMySQLTuner(nil)
	assert.Equal(t, []string{
		"SET autocommit = 0",
		"SET unique_checks = 0",
		"SET foreign_key_checks = 0",
	}, tn.SessionStatements(tuning.BulkMode))
	assert.Equal(t, []string{
		"SET autocommit = 1",
		"SET unique_checks = 1",
		"SET foreign_key_checks = 1",
	}, tn.SessionStatements(tuning.SafeMode))
}

func TestMySQLTuner_Diagnostics(t *testing.T) {
	conn, mock := newMySQL(t)
	mock.ExpectQuery("SHOW VARIABLES LIKE 'innodb_buffer_pool_size'").
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("innodb_buffer_pool_size", "1073741824"))

	d, err := tuning.NewMySQLTuner(conn).Diagnostics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1073741824), d.Bytes)
	assert.Equal(t, "innodb_buffer_pool_size=1.00 GB", d.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_EntersAndRestores(t *testing.T) {
	conn, mock := newMySQL(t)
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 1").WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := tuning.Acquire(context.Background(), "acquire-enters", tuning.NewMySQLTuner(conn))
	require.NoError(t, err)
	require.NoError(t, release())
	require.NoError(t, release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_RestoresWhenEnterFails(t *testing.T) {
	conn, mock := newMySQL(t)
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 2").WillReturnError(errors.New("Access denied; you need SUPER"))
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 1").WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := tuning.Acquire(context.Background(), "acquire-fails", tuning.NewMySQLTuner(conn))
	assert.Nil(t, release)
	assert.True(t, exception.IsKind(err, exception.KindTransactional))
	assert.NoError(t, mock.ExpectationsWereMet())

	// The guard was freed.
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	release, err = tuning.Acquire(context.Background(), "acquire-fails", tuning.NewMySQLTuner(conn))
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestAcquire_RestoresAfterCancel(t *testing.T) {
	conn, mock := newMySQL(t)
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET GLOBAL innodb_flush_log_at_trx_commit = 1").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	release, err := tuning.Acquire(ctx, "acquire-cancel", tuning.NewMySQLTuner(conn))
	require.NoError(t, err)
	cancel()
	require.NoError(t, release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countingTuner struct {
	active, max atomic.Int32
}

func (*countingTuner) Engine() string { return "fake" }
func (c *countingTuner) EnterBulkMode(context.Context) error {
	n := c.active.Add(1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			return nil
		}
	}
}
func (c *countingTuner) RestoreSafeMode(context.Context) error {
	c.active.Add(-1)
	return nil
}
func (*countingTuner) SessionStatements(tuning.EngineSettings) []string { return nil }
func (*countingTuner) Diagnostics(context.Context) (tuning.Diagnostic, error) {
	return tuning.Diagnostic{Bytes: -1}, nil
}

func TestAcquire_SerializesRunsOnSameEngine(t *testing.T) {
	tn := &countingTuner{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := tuning.Acquire(context.Background(), "serialize", tn)
			if !assert.NoError(t, err) {
				return
			}
			time.Sleep(2 * time.Millisecond)
			assert.NoError(t, release())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), tn.max.Load())
	assert.Equal(t, int32(0), tn.active.Load())
}

func TestAcquire_StoppedWhileWaiting(t *testing.T) {
	tn := &countingTuner{}
	release, err := tuning.Acquire(context.Background(), "stopped-waiting", tn)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tuning.Acquire(ctx, "stopped-waiting", tn)
	assert.True(t, exception.IsKind(err, exception.KindStopped))
}

func TestPostgresAndSQLiteStatements(t *testing.T) {
	pg := tuning.NewPostgresTuner(nil)
	assert.Equal(t, []string{"SET session_replication_role = replica"}, pg.SessionStatements(tuning.BulkMode))
	assert.Equal(t, []string{"SET session_replication_role = DEFAULT"}, pg.SessionStatements(tuning.SafeMode))

	lite := tuning.NewSQLiteTuner(nil)
	assert.Equal(t, []string{"PRAGMA foreign_keys = 0", "PRAGMA synchronous = OFF"}, lite.SessionStatements(tuning.BulkMode))
	assert.Equal(t, []string{"PRAGMA foreign_keys = 1", "PRAGMA synchronous = FULL"}, lite.SessionStatements(tuning.SafeMode))
	assert.NoError(t, lite.EnterBulkMode(context.Background()))
}
