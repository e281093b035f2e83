// Package dialect provides the storage contracts consumed by the veloxrm
// unit of work.
//
// The record manager never talks to database/sql directly. Every statement
// issued while lazy-loading references or committing scheduled changes goes
// through the small interfaces declared here, which keeps the core testable
// with any executor.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// The Tx interface extends ExecQuerier with transaction methods:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// The unit of work wraps a commit in a Tx by default. Executors that cannot
// open transactions can be adapted with NopTx, in which case statements that
// ran before a failure are not undone by the record manager.
//
// # Usage
//
//	import (
//	    "github.com/syssam/veloxrm/dialect"
//	    "github.com/syssam/veloxrm/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	rm, err := veloxrm.New(drv, s)
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, statistics and a minimal statement builder
//   - dialect/sql/sqlgraph: classification of driver constraint errors
//   - dialect/sqlschema: referential actions (CASCADE, SET NULL, ...)
package dialect
