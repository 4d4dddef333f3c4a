package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want exception.Kind
	}{
		{"bad conn", driver.ErrBadConn, exception.KindConnection},
		{"mysql too many connections", &mysql.MySQLError{Number: 1040, Message: "Too many connections"}, exception.KindConnection},
		{"mysql duplicate key", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, exception.KindValidation},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, exception.KindValidation},
		{"mysql data too long", &mysql.MySQLError{Number: 1406, Message: "Data too long"}, exception.KindTransactional},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, exception.KindConnection},
		{"pg not null violation", &pgconn.PgError{Code: "23502"}, exception.KindTransactional},
		{"canceled", fmt.Errorf("exec: %w", context.Canceled), exception.KindStopped},
		{"other", errors.New("syntax error"), exception.KindTransactional},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ClassifyError("loader", "insert failed", tc.err)
			assert.Equal(t, tc.want, exception.KindOf(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestClassifyError_KeepsExistingKind(t *testing.T) {
	orig := exception.NewBatchError("reader", exception.KindParse, "bad row", nil)
	assert.Same(t, orig, ClassifyError("loader", "x", orig))
	assert.Nil(t, ClassifyError("loader", "x", nil))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKeyError(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyError(errors.New("UNIQUE constraint failed: items.name")))
	assert.False(t, IsDuplicateKeyError(errors.New("boom")))
	assert.False(t, IsDuplicateKeyError(nil))
}
