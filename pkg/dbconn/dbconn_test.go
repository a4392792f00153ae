package dbconn

import (
	"context"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMySQLCanRetry(t *testing.T) {
	assert.True(t, mysqlCanRetry(&mysql.MySQLError{Number: errLockWaitTimeout}))
	assert.True(t, mysqlCanRetry(&mysql.MySQLError{Number: errDeadlock}))
	assert.False(t, mysqlCanRetry(&mysql.MySQLError{Number: errMySQLSyntax}))
	assert.False(t, mysqlCanRetry(assert.AnError))
}

func TestMySQLIsProgrammingError(t *testing.T) {
	assert.True(t, mysqlIsProgrammingError(&mysql.MySQLError{Number: errMySQLSyntax}))
	assert.True(t, mysqlIsProgrammingError(&mysql.MySQLError{Number: errMySQLNoSuchTable}))
	assert.False(t, mysqlIsProgrammingError(&mysql.MySQLError{Number: errDeadlock}))
}

func TestPGIsProgrammingError(t *testing.T) {
	assert.True(t, pgIsProgrammingError(&pgconn.PgError{Code: "42601"}))
	assert.True(t, pgIsProgrammingError(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, pgIsProgrammingError(&pgconn.PgError{Code: "40001"}))
}

func TestPGCanRetry(t *testing.T) {
	assert.True(t, pgCanRetry(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, pgCanRetry(&pgconn.PgError{Code: "42601"}))
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := withRetry(context.TODO(), VendorMySQL, 5, func() error {
		attempts++
		return &mysql.MySQLError{Number: errMySQLSyntax}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsRetryable(t *testing.T) {
	attempts := 0
	err := withRetry(context.TODO(), VendorMySQL, 3, func() error {
		attempts++
		return &mysql.MySQLError{Number: errDeadlock}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := withRetry(context.TODO(), VendorMySQL, 5, func() error {
		attempts++
		if attempts < 2 {
			return &mysql.MySQLError{Number: errDeadlock}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestVendorString(t *testing.T) {
	assert.Equal(t, "mysql", VendorMySQL.String())
	assert.Equal(t, "postgres", VendorPG.String())
}
