package veloxrm_test

import (
	"bytes"
	"context"
	stdsql "database/sql"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/veloxrm"
	"github.com/syssam/veloxrm/dialect"
	"github.com/syssam/veloxrm/dialect/sql"
	"github.com/syssam/veloxrm/schema"
)

const editorialSchema = `
tables:
  - name: user
    primary_key: [id]
    auto_increment: true
    fields: [id, username]
  - name: editor
    primary_key: [id]
    auto_increment: true
    fields: [id, name]
  - name: author
    primary_key: [id]
    auto_increment: true
    fields:
      - id
      - name
      - name: user_id
        nullable: true
      - name: editor_id
        nullable: true
  - name: tree_node
    primary_key: [id]
    auto_increment: true
    fields:
      - id
      - name
      - name: parent_id
        nullable: true
  - name: publisher
    primary_key: [id]
    auto_increment: true
    fields: [id, name]
  - name: book
    primary_key: [id]
    auto_increment: true
    fields: [id, title, publisher_id]
  - name: book_stats
    primary_key: [id]
    view: true
    fields: [id, publisher_id, total]
relations:
  - owning_table: author
    owning_field: user_id
    referenced_table: user
    cardinality: one_to_one
    on_delete: cascade
    on_update: cascade
  - owning_table: author
    owning_field: editor_id
    referenced_table: editor
    on_delete: set_null
    order_by: name
  - owning_table: tree_node
    owning_field: parent_id
    referenced_table: tree_node
    owning_alias: Children
    referenced_alias: Parent
    on_delete: cascade
  - owning_table: book
    owning_field: publisher_id
    referenced_table: publisher
    on_delete: restrict
  - owning_table: book_stats
    owning_field: publisher_id
    referenced_table: publisher
    owning_alias: Stats
`

const editorialDDL = `
CREATE TABLE "user" (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT);
CREATE TABLE editor (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);
CREATE TABLE author (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	user_id INTEGER UNIQUE REFERENCES "user"(id),
	editor_id INTEGER REFERENCES editor(id)
);
CREATE TABLE tree_node (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, parent_id INTEGER REFERENCES tree_node(id));
CREATE TABLE publisher (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);
CREATE TABLE book (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT,
	publisher_id INTEGER NOT NULL REFERENCES publisher(id)
);
CREATE VIEW book_stats AS SELECT publisher_id AS id, publisher_id, COUNT(*) AS total FROM book GROUP BY publisher_id;
`

func loadSchema(t testing.TB) *schema.Schema {
	t.Helper()
	s, err := schema.Load([]byte(editorialSchema))
	require.NoError(t, err)
	return s
}

// openSQLite returns a driver over a fresh in-memory database with the
// editorial tables and foreign keys enforced.
func openSQLite(t testing.TB) *sql.Driver {
	t.Helper()
	db, err := stdsql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(editorialDDL)
	require.NoError(t, err)
	return sql.OpenDB(dialect.SQLite, db)
}

// newManager returns a Manager over an in-memory SQLite database.
func newManager(t testing.TB, opts ...veloxrm.Option) (*veloxrm.Manager, *sql.Driver) {
	t.Helper()
	drv := openSQLite(t)
	rm, err := veloxrm.New(drv, loadSchema(t), opts...)
	require.NoError(t, err)
	return rm, drv
}

// newMockManager returns a Manager over sqlmock with exact statement matching.
func newMockManager(t testing.TB, opts ...veloxrm.Option) (*veloxrm.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	rm, err := veloxrm.New(sql.OpenDB(dialect.SQLite, db), loadSchema(t), opts...)
	require.NoError(t, err)
	return rm, mock
}

func newRecord(t testing.TB, rm *veloxrm.Manager, table string, data map[string]any) *veloxrm.Record {
	t.Helper()
	rec, err := rm.Table(table).NewRecord(data)
	require.NoError(t, err)
	return rec
}

func hydrate(t testing.TB, rm *veloxrm.Manager, table string, row map[string]any) *veloxrm.Record {
	t.Helper()
	rec, err := rm.Table(table).Hydrate(row)
	require.NoError(t, err)
	return rec
}

func exec(t testing.TB, drv *sql.Driver, query string, args ...any) {
	t.Helper()
	_, err := drv.DB().Exec(query, args...)
	require.NoError(t, err)
}

func count(t testing.TB, drv *sql.Driver, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, drv.DB().QueryRow(query, args...).Scan(&n))
	return n
}

// TestNew tests Manager construction.
func TestNew(t *testing.T) {
	t.Parallel()

	_, err := veloxrm.New(nil, loadSchema(t))
	require.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sql.OpenDB(dialect.SQLite, db)

	_, err = veloxrm.New(drv, nil)
	require.Error(t, err)

	rm, err := veloxrm.New(drv, loadSchema(t), veloxrm.WithBatchSize(10), veloxrm.WithTx(false))
	require.NoError(t, err)
	assert.Same(t, drv, rm.Driver())
	assert.NotNil(t, rm.Schema())
	assert.Equal(t, "author", rm.Table("author").Name())
	assert.Panics(t, func() { rm.Table("missing") })
	_, ok := rm.LookupTable("missing")
	assert.False(t, ok)

	rel, ok := rm.Relation("editor", "Authors")
	require.True(t, ok)
	assert.Equal(t, "author.editor_id", rel.Name)
	_, ok = rm.Relation("editor", "User")
	assert.False(t, ok)
}

// TestManager_Clear tests that Clear drops all session state.
func TestManager_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rm, _ := newMockManager(t)

	editor := hydrate(t, rm, "editor", map[string]any{"id": int64(1), "name": "Eve"})
	author := newRecord(t, rm, "author", nil)
	require.NoError(t, author.SetReference(ctx, "Editor", editor))
	require.NoError(t, rm.Save(ctx, author))
	require.Equal(t, 1, rm.UnitOfWork().Len())

	rm.Clear()
	assert.Equal(t, 0, rm.UnitOfWork().Len())
	assert.Empty(t, rm.Table("editor").Records())
	assert.Empty(t, rm.Table("author").Records())
	rel, _ := rm.Relation("editor", "Authors")
	assert.Equal(t, 0, rel.Refs().Len())
}

// TestWithLogger tests that scheduling and commits are logged.
func TestWithLogger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rm, _ := newManager(t, veloxrm.WithLogger(logger))

	user := newRecord(t, rm, "user", map[string]any{"username": "ada"})
	require.NoError(t, rm.Save(ctx, user))
	require.NoError(t, rm.Commit(ctx))

	out := buf.String()
	assert.Contains(t, out, "scheduled save")
	assert.Contains(t, out, `INSERT INTO \"user\"`)
	assert.Contains(t, out, "changes committed")
	assert.Contains(t, out, "component=veloxrm")
}
