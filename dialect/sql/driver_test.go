package sql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/syssam/veloxrm/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenDB tests the OpenDB function with different dialects.
func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		want    string
	}{
		{"Postgres", dialect.Postgres, dialect.Postgres},
		{"MySQL", dialect.MySQL, dialect.MySQL},
		{"SQLite", dialect.SQLite, dialect.SQLite},
		{"SQLiteDriverName", "sqlite", dialect.SQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.dialect, db)
			assert.NotNil(t, drv)
			assert.Equal(t, tt.want, drv.Dialect())
		})
	}
}

// TestDriverQuery tests query operations.
func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("query_with_args", func(t *testing.T) {
		mock.ExpectQuery("SELECT name FROM author WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT name FROM author WHERE id = $1", []any{1}, rows)
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("database error"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT", []any{}, rows)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_target", func(t *testing.T) {
		err := drv.Query(context.Background(), "SELECT 1", []any{}, &sql.Rows{})
		require.Error(t, err)
		err = drv.Query(context.Background(), "SELECT 1", "not args", &Rows{})
		require.Error(t, err)
	})
}

// TestDriverExec tests execute operations.
func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("exec_result", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO author").
			WillReturnResult(sqlmock.NewResult(42, 1))

		var res Result
		err := drv.Exec(context.Background(), "INSERT INTO author (name) VALUES ($1)", []any{"a8m"}, &res)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_without_result", func(t *testing.T) {
		mock.ExpectExec("UPDATE author SET name = \\$1 WHERE id = \\$2").
			WithArgs("Alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := drv.Exec(context.Background(), "UPDATE author SET name = $1 WHERE id = $2", []any{"Alice", 1}, nil)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_error", func(t *testing.T) {
		mock.ExpectExec("DELETE").WillReturnError(errors.New("constraint violation"))

		err := drv.Exec(context.Background(), "DELETE FROM author", []any{}, nil)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_result_type", func(t *testing.T) {
		var n int
		err := drv.Exec(context.Background(), "DELETE FROM author", []any{}, &n)
		require.Error(t, err)
	})
}

// TestDriverTransaction tests transaction operations.
func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("successful_commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO author").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), "INSERT INTO author (name) VALUES ('test')", []any{}, nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO author").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), "INSERT INTO author (name) VALUES ('test')", []any{}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestScanMaps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.SQLite, db)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "editor_id"}).
			AddRow(int64(1), []byte("Alice"), nil).
			AddRow(int64(2), "Bob", int64(7)))

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id, name, editor_id FROM author", []any{}, rows))
	maps, err := ScanMaps(rows)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, map[string]any{"id": int64(1), "name": "Alice", "editor_id": nil}, maps[0])
	assert.Equal(t, map[string]any{"id": int64(2), "name": "Bob", "editor_id": int64(7)}, maps[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectQuery("INSERT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), `INSERT INTO "user" DEFAULT VALUES RETURNING "id"`, []any{}, rows))
	var id int64
	require.NoError(t, ScanValue(rows, &id))
	assert.Equal(t, int64(9), id)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rows = &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM author", []any{}, rows))
	assert.ErrorIs(t, ScanValue(rows, &id), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
