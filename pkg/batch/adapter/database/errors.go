package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

// MySQL server error numbers that mean the connection itself is unusable.
var mysqlConnectionErrors = map[uint16]bool{
	1040: true, // ER_CON_COUNT_ERROR
	1045: true, // ER_ACCESS_DENIED_ERROR
	1049: true, // ER_BAD_DB_ERROR
	1053: true, // ER_SERVER_SHUTDOWN
	1129: true, // ER_HOST_IS_BLOCKED
	1130: true, // ER_HOST_NOT_PRIVILEGED
	1203: true, // ER_TOO_MANY_USER_CONNECTIONS
}

// IsConnectionError reports whether err means the sink could not be reached or the
// connection broke, as opposed to a statement being rejected.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlConnectionErrors[myErr.Number]
	}
	var pgConnErr *pgconn.ConnectError
	if errors.As(err, &pgConnErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQLSTATE class 08: connection exception. 57P01..57P03: server shutting down.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	return false
}

// IsDuplicateKeyError reports whether err is a unique constraint violation.
func IsDuplicateKeyError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ClassifyError wraps err in a BatchError whose Kind is connection, stopped, validation (a
// unique constraint rejected the rows) or transactional. Errors that already carry a Kind are
// returned unchanged.
func ClassifyError(module, message string, err error) error {
	if err == nil {
		return nil
	}
	var be *exception.BatchError
	if errors.As(err, &be) {
		return err
	}
	kind := exception.KindTransactional
	switch {
	case errors.Is(err, context.Canceled):
		kind = exception.KindStopped
	case IsConnectionError(err):
		kind = exception.KindConnection
	case IsDuplicateKeyError(err):
		kind = exception.KindValidation
	}
	return exception.NewBatchError(module, kind, message, err)
}
