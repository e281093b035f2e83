package sql

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/syssam/veloxrm/dialect"
)

// DebugDriver is a Driver logging every statement and transaction
// boundary. Statements of one transaction share a "tx" attribute.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
	level  slog.Level
}

// DebugOption configures a DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLogger sets the logger. Default is slog.Default().
func DebugWithLogger(logger *slog.Logger) DebugOption {
	return func(d *DebugDriver) {
		d.logger = logger
	}
}

// DebugWithLevel sets the level records are logged at. Default is debug.
func DebugWithLevel(level slog.Level) DebugOption {
	return func(d *DebugDriver) {
		d.level = level
	}
}

// NewDebugDriver wraps drv with statement logging.
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{Driver: drv, logger: slog.Default(), level: slog.LevelDebug}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Query logs and runs a query.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.logger.Log(ctx, d.level, "query", "query", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec logs and runs a statement.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.logger.Log(ctx, d.level, "exec", "query", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose statements are logged.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.logger.Log(ctx, d.level, "begin failed", "error", err)
		return nil, err
	}
	logger := d.logger.With("tx", uuid.NewString())
	logger.Log(ctx, d.level, "begin")
	return &DebugTx{Tx: tx, logger: logger, level: d.level}, nil
}

// DebugTx is a transaction started by a DebugDriver.
type DebugTx struct {
	dialect.Tx
	logger *slog.Logger
	level  slog.Level
}

// Query logs and runs a query within the transaction.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.logger.Log(ctx, tx.level, "query", "query", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec logs and runs a statement within the transaction.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.logger.Log(ctx, tx.level, "exec", "query", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit logs and commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.logger.Log(context.Background(), tx.level, "commit")
	return tx.Tx.Commit()
}

// Rollback logs and rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	tx.logger.Log(context.Background(), tx.level, "rollback")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
