package pgsql

import (
	"context"
	"errors"
	"testing"

	"github.com/syssam/pgadapt"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestNextIDFastPath tests that a healthy sequence needs a single fetch.
func TestNextIDFastPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := OpenDB(db)

	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))

	id, err := a.NextID(context.Background(), "users", "id", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNextIDRepairPath tests the locked restart of a sequence that has
// fallen behind its table.
func TestNextIDRepairPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	a := OpenDB(db)

	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(1))
	mock.ExpectExec("SELECT pg_advisory_lock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(2))
	mock.ExpectExec("ALTER SEQUENCE users_id_seq RESTART WITH 101").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(101))
	mock.ExpectExec("SELECT pg_advisory_unlock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	id, err := a.NextID(context.Background(), "users", "id", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNextIDRepairAlreadyDone tests the re-check after lock acquisition:
// when another caller repaired the sequence while we waited, no restart
// is issued.
func TestNextIDRepairAlreadyDone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	a := OpenDB(db)

	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(50))
	mock.ExpectExec("SELECT pg_advisory_lock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(150))
	mock.ExpectExec("SELECT pg_advisory_unlock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	id, err := a.NextID(context.Background(), "users", "id", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(150), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNextIDUnlockOnFailure tests that the advisory lock is released when a
// statement inside the repair fails.
func TestNextIDUnlockOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	a := OpenDB(db)

	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(1))
	mock.ExpectExec("SELECT pg_advisory_lock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnError(errors.New("terminating connection"))
	mock.ExpectExec("SELECT pg_advisory_unlock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = a.NextID(context.Background(), "users", "id", 100)
	require.Error(t, err)
	assert.True(t, pgadapt.IsExecutionError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNextIDLockFailure tests that a failed acquisition returns without
// attempting a release.
func TestNextIDLockFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	a := OpenDB(db)

	mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(1))
	mock.ExpectExec("SELECT pg_advisory_lock\\(\\$1\\)").
		WithArgs(pgadapt.DefaultAdvisoryLockKey).
		WillReturnError(errors.New("canceling statement due to user request"))

	_, err = a.NextID(context.Background(), "users", "id", 100)
	require.Error(t, err)
	assert.True(t, pgadapt.IsExecutionError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNextIDOptions tests lock key and table prefix configuration.
func TestNextIDOptions(t *testing.T) {
	t.Run("custom_lock_key", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		db.SetMaxOpenConns(1)

		a := OpenDB(db, WithAdvisoryLockKey(777))

		mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(1))
		mock.ExpectExec("SELECT pg_advisory_lock\\(\\$1\\)").
			WithArgs(int64(777)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(200))
		mock.ExpectExec("SELECT pg_advisory_unlock\\(\\$1\\)").
			WithArgs(int64(777)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		id, err := a.NextID(context.Background(), "users", "id", 100)
		require.NoError(t, err)
		assert.Equal(t, int64(200), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("table_prefix", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		a := OpenDB(db, WithTablePrefix("app_"))

		mock.ExpectQuery("SELECT nextval\\('app_users_id_seq'\\)").
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(9))

		id, err := a.NextID(context.Background(), "users", "id", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(9), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_table_name", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		a := OpenDB(db)

		_, err = a.NextID(context.Background(), "users; DROP TABLE users", "id", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sequence name")
	})
}

// TestNextIDConcurrent tests that concurrent callers each get a distinct
// identifier.
func TestNextIDConcurrent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	a := OpenDB(db)

	const n = 4
	for i := 0; i < n; i++ {
		mock.ExpectQuery("SELECT nextval\\('users_id_seq'\\)").
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(101 + i))
	}

	ids := make([]int64, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := a.NextID(ctx, "users", "id", 100)
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		assert.Greater(t, id, int64(100))
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
