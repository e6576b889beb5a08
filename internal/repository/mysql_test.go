package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
)

func newTestMySQLStore(t *testing.T) *MySQLStore {
	t.Helper()
	dsn := os.Getenv("RESERVATION_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("RESERVATION_TEST_MYSQL_DSN not set")
	}
	db, err := sqlx.Connect("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewMySQLStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestMySQLStoreContract(t *testing.T) {
	store := newTestMySQLStore(t)
	reset := func(t *testing.T) {
		for _, table := range []string{"reservations", "restaurant_policy"} {
			_, err := store.DB().ExecContext(context.Background(), "DELETE FROM "+table)
			require.NoError(t, err)
		}
	}
	runStoreContract(t, store, reset)
}

func TestMySQLErrorMapping(t *testing.T) {
	dup := mysqlError("insert reservation", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.ErrorIs(t, dup, booking.ErrUniqueViolation)
	assert.False(t, booking.IsRetryable(dup))

	for _, n := range []uint16{1205, 1213} {
		err := mysqlError("lock policy", &mysql.MySQLError{Number: n})
		assert.ErrorIs(t, err, booking.ErrStorageUnavailable, fmt.Sprint(n))
		var myErr *mysql.MySQLError
		assert.True(t, errors.As(err, &myErr))
	}

	conn := mysqlError("begin", mysql.ErrInvalidConn)
	assert.ErrorIs(t, conn, booking.ErrStorageUnavailable)

	cancelled := mysqlError("sum guests", context.Canceled)
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.NotErrorIs(t, cancelled, booking.ErrStorageUnavailable)
}
