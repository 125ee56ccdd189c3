package sql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/syssam/pgadapt/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatsDriver tests statistics collection on queries and execs.
func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewStatsDriver(OpenDB(dialect.Postgres, db))

	mock.ExpectQuery("SELECT id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM users", []any{}, rows))
	require.NoError(t, rows.Close())

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, drv.Exec(context.Background(), "INSERT INTO users (name) VALUES ('x')", []any{}, nil))

	mock.ExpectExec("UPDATE users").WillReturnError(errors.New("syntax error"))
	require.Error(t, drv.Exec(context.Background(), "UPDATE users SET", []any{}, nil))

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(2), s.TotalExecs)
	assert.Equal(t, int64(1), s.Errors)
	assert.GreaterOrEqual(t, s.AvgQueryDuration(), time.Duration(0))

	drv.QueryStats().Reset()
	s = drv.QueryStats().Stats()
	assert.Equal(t, int64(0), s.TotalQueries)
	assert.Equal(t, int64(0), s.TotalExecs)
	assert.Equal(t, int64(0), s.Errors)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStatsDriverSlowHook tests slow query detection and the hook callback.
func TestStatsDriverSlowHook(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var (
		hookQuery string
		hookArgs  []any
		hookCount int
	)
	// A negative threshold marks every statement as slow.
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
		WithSlowThreshold(-time.Nanosecond),
		WithSlowQueryHook(func(_ context.Context, query string, args []any, _ time.Duration) {
			hookQuery = query
			hookArgs = args
			hookCount++
		}),
	)
	assert.Equal(t, -time.Nanosecond, drv.SlowThreshold())

	mock.ExpectQuery("SELECT name FROM users WHERE id = \\$1").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Carol"))

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT name FROM users WHERE id = $1", []any{3}, rows))
	require.NoError(t, rows.Close())

	assert.Equal(t, 1, hookCount)
	assert.Equal(t, "SELECT name FROM users WHERE id = $1", hookQuery)
	assert.Equal(t, []any{3}, hookArgs)
	assert.Equal(t, int64(1), drv.QueryStats().Stats().SlowQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStatsTx tests statistics collection inside a transaction.
func TestStatsTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := NewStatsDriver(OpenDB(dialect.Postgres, db))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)

	rows := &Rows{}
	require.NoError(t, tx.Query(context.Background(), "SELECT id FROM users", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, tx.Exec(context.Background(), "DELETE FROM users WHERE id = 1", []any{}, nil))
	require.NoError(t, tx.Commit())

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(1), s.TotalExecs)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStatsSnapshotString tests the human-readable summary.
func TestStatsSnapshotString(t *testing.T) {
	s := StatsSnapshot{
		TotalQueries:  3,
		TotalExecs:    1,
		TotalDuration: 4 * time.Millisecond,
		SlowQueries:   1,
		Errors:        2,
	}
	assert.Equal(t, time.Millisecond, s.AvgQueryDuration())
	assert.Equal(t, "queries=3 execs=1 duration=4ms avg=1ms slow=1 errors=2", s.String())

	var empty StatsSnapshot
	assert.Equal(t, time.Duration(0), empty.AvgQueryDuration())
}

// TestDebugDriver tests debug logging of statements and transactions.
func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logs []string
	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLog(func(_ context.Context, v ...any) {
		logs = append(logs, fmt.Sprint(v...))
	}))

	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, drv.Exec(context.Background(), "UPDATE users SET active = $1", []any{1}, nil))
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "exec: UPDATE users SET active = $1")
	assert.Contains(t, logs[0], "args: [1]")

	mock.ExpectQuery("SELECT id FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM users", []any{}, rows))
	require.NoError(t, rows.Close())
	require.Len(t, logs, 2)
	assert.Contains(t, logs[1], "query: SELECT id FROM users")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "DELETE FROM users WHERE id = 1", []any{}, nil))
	require.NoError(t, tx.Commit())

	require.Len(t, logs, 5)
	assert.Equal(t, "begin transaction", logs[2])
	assert.Contains(t, logs[3], "tx exec: DELETE FROM users WHERE id = 1")
	assert.Equal(t, "commit transaction", logs[4])
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestDebugTxRollback tests rollback logging.
func TestDebugTxRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logs []string
	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLog(func(_ context.Context, v ...any) {
		logs = append(logs, fmt.Sprint(v...))
	}))

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.Len(t, logs, 2)
	assert.Equal(t, "begin transaction", logs[0])
	assert.Equal(t, "rollback transaction", logs[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestOpenWithStats tests the combined open helper against a real engine.
func TestOpenWithStats(t *testing.T) {
	drv, stats, err := OpenWithStats("sqlite", ":memory:", WithSlowThreshold(time.Second))
	require.NoError(t, err)
	defer drv.Close()
	require.NotNil(t, stats)

	require.NoError(t, drv.Exec(context.Background(), "CREATE TABLE pets (id INTEGER PRIMARY KEY)", []any{}, nil))
	assert.Equal(t, int64(1), stats.Stats().TotalExecs)
	assert.Equal(t, "sqlite", drv.Dialect())
}
