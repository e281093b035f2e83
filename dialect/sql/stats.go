package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/veloxrm/dialect"
)

// Verb classifies a statement by its leading keyword.
type Verb uint8

// Statement verbs counted by QueryStats.
const (
	VerbOther Verb = iota
	VerbSelect
	VerbInsert
	VerbUpdate
	VerbDelete
	numVerbs
)

var verbNames = [numVerbs]string{"other", "select", "insert", "update", "delete"}

// String returns the lower-case verb name.
func (v Verb) String() string {
	if v < numVerbs {
		return verbNames[v]
	}
	return fmt.Sprintf("Verb(%d)", v)
}

// VerbOf returns the verb of query.
func VerbOf(query string) Verb {
	head, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch strings.ToUpper(head) {
	case "SELECT", "WITH":
		return VerbSelect
	case "INSERT":
		return VerbInsert
	case "UPDATE":
		return VerbUpdate
	case "DELETE":
		return VerbDelete
	default:
		return VerbOther
	}
}

// QueryStats counts statements and transaction outcomes. It is safe for
// concurrent use.
type QueryStats struct {
	verbs     [numVerbs]atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
	errors    atomic.Int64
	slow      atomic.Int64
	elapsed   atomic.Int64 // nanoseconds
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		Selects:       s.verbs[VerbSelect].Load(),
		Inserts:       s.verbs[VerbInsert].Load(),
		Updates:       s.verbs[VerbUpdate].Load(),
		Deletes:       s.verbs[VerbDelete].Load(),
		Other:         s.verbs[VerbOther].Load(),
		Commits:       s.commits.Load(),
		Rollbacks:     s.rollbacks.Load(),
		Errors:        s.errors.Load(),
		SlowQueries:   s.slow.Load(),
		TotalDuration: time.Duration(s.elapsed.Load()),
	}
}

// Reset sets every counter back to zero.
func (s *QueryStats) Reset() {
	for i := range s.verbs {
		s.verbs[i].Store(0)
	}
	s.commits.Store(0)
	s.rollbacks.Store(0)
	s.errors.Store(0)
	s.slow.Store(0)
	s.elapsed.Store(0)
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	Selects       int64
	Inserts       int64
	Updates       int64
	Deletes       int64
	Other         int64
	Commits       int64
	Rollbacks     int64
	Errors        int64 // failed statements and commits
	SlowQueries   int64
	TotalDuration time.Duration
}

// Writes returns the number of data-modifying statements.
func (s StatsSnapshot) Writes() int64 {
	return s.Inserts + s.Updates + s.Deletes
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"selects=%d inserts=%d updates=%d deletes=%d commits=%d rollbacks=%d errors=%d slow=%d duration=%s",
		s.Selects, s.Inserts, s.Updates, s.Deletes, s.Commits, s.Rollbacks, s.Errors, s.SlowQueries, s.TotalDuration,
	)
}

// SlowQueryHook is called for every statement slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver is a Driver recording QueryStats for every statement it
// runs, inside or outside transactions.
type StatsDriver struct {
	dialect.Driver
	stats     QueryStats
	threshold atomic.Int64 // nanoseconds
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook sets the function called for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements as warnings on logger, or on the
// default logger if nil.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		logger.WarnContext(ctx, "slow query", "duration", duration, "query", query, "args", args)
	})
}

// NewStatsDriver wraps drv with statistics collection.
//
//	drv := sql.NewStatsDriver(sql.OpenDB(dialect.Postgres, db),
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	rm, _ := veloxrm.New(drv, s)
//	...
//	fmt.Println(drv.QueryStats().Stats())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the live counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats {
	return &d.stats
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

// Query runs a query and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error {
		return d.Driver.Query(ctx, query, args, v)
	})
}

// Exec runs a statement and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error {
		return d.Driver.Exec(ctx, query, args, v)
	})
}

// Tx starts a transaction whose statements and outcome are recorded.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, query string, args any, run func() error) error {
	start := time.Now()
	err := run()
	elapsed := time.Since(start)

	d.stats.verbs[VerbOf(query)].Add(1)
	d.stats.elapsed.Add(int64(elapsed))
	if err != nil {
		d.stats.errors.Add(1)
	}
	if elapsed > time.Duration(d.threshold.Load()) {
		d.stats.slow.Add(1)
		if d.hook != nil {
			argv, _ := args.([]any)
			d.hook(ctx, query, argv, elapsed)
		}
	}
	return err
}

// StatsTx is a transaction started by a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query runs a query within the transaction and records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error {
		return tx.Tx.Query(ctx, query, args, v)
	})
}

// Exec runs a statement within the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error {
		return tx.Tx.Exec(ctx, query, args, v)
	})
}

// Commit commits the transaction and counts it when it succeeds.
func (tx *StatsTx) Commit() error {
	if err := tx.Tx.Commit(); err != nil {
		tx.driver.stats.errors.Add(1)
		return err
	}
	tx.driver.stats.commits.Add(1)
	return nil
}

// Rollback rolls the transaction back and counts it.
func (tx *StatsTx) Rollback() error {
	tx.driver.stats.rollbacks.Add(1)
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
)
