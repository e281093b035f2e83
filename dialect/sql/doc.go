// Package sql provides the SQL statement builders and the database/sql
// backed driver used by the unit of work.
//
// # Builders
//
// Statements are rendered per dialect. Identifiers are quoted with
// backticks on MySQL and double quotes elsewhere, and placeholders are
// numbered ($1, $2, ...) on PostgreSQL:
//
//	q, args := sql.Dialect(dialect.Postgres).
//	    Update("author").
//	    Set("editor_id", nil).
//	    Where(sql.EQ("id", 3)).
//	    Query()
//	// UPDATE "author" SET "editor_id" = NULL WHERE "id" = $1
//
// # Drivers
//
// Driver wraps a *sql.DB and implements dialect.Driver. StatsDriver and
// DebugDriver decorate any dialect.Driver with statement counters and
// debug logging:
//
//	db, _ := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
//	drv := sql.NewStatsDriver(sql.OpenDB(dialect.SQLite, db))
package sql
