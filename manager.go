package veloxrm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/veloxrm/dialect"
	"github.com/syssam/veloxrm/schema"
)

// Option configures a Manager.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	tx        bool
	policy    Policy
	batchSize int
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTx sets whether a commit runs inside a database transaction.
// Enabled by default. Without it, statements executed before a failure
// stay applied in the database.
func WithTx(enabled bool) Option {
	return func(c *config) {
		c.tx = enabled
	}
}

// WithPolicy sets the policy evaluated for every statement of a commit.
//
//	rm, err := veloxrm.New(drv, s, veloxrm.WithPolicy(privacy.NewPolicy(
//	    privacy.DenyIfNoViewer(),
//	    privacy.AlwaysAllowRule(),
//	)))
func WithPolicy(p Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithBatchSize sets the maximum number of keys in the IN list of one lazy
// load query. Defaults to 500.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// Manager is a record session: it owns the identity registries, the
// reference maps and the unit of work of a set of tables. A Manager is not
// safe for concurrent use; use one Manager per goroutine.
type Manager struct {
	drv       dialect.Driver
	schema    *schema.Schema
	cfg       config
	log       *slog.Logger
	tables    map[string]*Table
	relations map[string]*Relation
	arena     map[string]*Record // token -> record
	uow       *UnitOfWork
}

// New returns a Manager for the tables of s.
//
//	db, _ := sql.Open("sqlite", "file:app.db?_pragma=foreign_keys(1)")
//	rm, err := veloxrm.New(sql.OpenDB(dialect.SQLite, db), s)
func New(drv dialect.Driver, s *schema.Schema, opts ...Option) (*Manager, error) {
	if drv == nil {
		return nil, fmt.Errorf("veloxrm: nil driver")
	}
	if s == nil {
		return nil, fmt.Errorf("veloxrm: nil schema")
	}
	cfg := config{logger: slog.Default(), tx: true, batchSize: 500}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	rm := &Manager{
		drv:       drv,
		schema:    s,
		cfg:       cfg,
		log:       cfg.logger.With("component", "veloxrm"),
		tables:    make(map[string]*Table, len(s.Tables)),
		relations: make(map[string]*Relation, len(s.Relations)),
		arena:     make(map[string]*Record),
	}
	for _, t := range s.Tables {
		rm.tables[t.Name] = newTable(rm, t)
	}
	for _, r := range s.Relations {
		rm.relations[r.Name] = newRelation(rm, r)
	}
	rm.uow = newUnitOfWork(rm)
	return rm, nil
}

// Driver returns the underlying driver.
func (rm *Manager) Driver() dialect.Driver { return rm.drv }

// Schema returns the relation metadata.
func (rm *Manager) Schema() *schema.Schema { return rm.schema }

// UnitOfWork returns the unit of work of the session.
func (rm *Manager) UnitOfWork() *UnitOfWork { return rm.uow }

// Table returns the named table. It panics if the table does not exist.
func (rm *Manager) Table(name string) *Table {
	t, ok := rm.tables[name]
	if !ok {
		panic(fmt.Sprintf("veloxrm: unknown table %q", name))
	}
	return t
}

// LookupTable returns the named table.
func (rm *Manager) LookupTable(name string) (*Table, bool) {
	t, ok := rm.tables[name]
	return t, ok
}

// Relation returns the relation reachable from table under alias.
func (rm *Manager) Relation(table, alias string) (*Relation, bool) {
	def, ok := rm.schema.Relation(table, alias)
	if !ok {
		return nil, false
	}
	return rm.relations[def.Name], true
}

// Save schedules rec and the new or modified records reachable through its
// loaded references for saving.
func (rm *Manager) Save(ctx context.Context, rec *Record) error {
	return rm.uow.ScheduleSave(ctx, rec, true)
}

// Delete schedules rec for deleting, applying the delete actions of the
// relations referencing it.
func (rm *Manager) Delete(ctx context.Context, rec *Record) error {
	return rm.uow.ScheduleDelete(ctx, rec)
}

// Commit executes all scheduled operations.
func (rm *Manager) Commit(ctx context.Context) error {
	return rm.uow.CommitChanges(ctx)
}

// Clear drops all records, reference state and scheduled operations of the
// session. The database is not touched.
func (rm *Manager) Clear() {
	for _, t := range rm.tables {
		t.repo.Clear()
	}
	for _, r := range rm.relations {
		r.refs.Clear()
		clear(r.displaced)
	}
	clear(rm.arena)
	rm.uow.Reset()
	rm.log.Debug("session cleared")
}

// relationByField returns the live relation whose foreign key is table.field.
func (rm *Manager) relationByField(table, field string) (*Relation, bool) {
	def, ok := rm.schema.RelationByField(table, field)
	if !ok {
		return nil, false
	}
	return rm.relations[def.Name], true
}

// relationsOwnedBy returns the live relations whose foreign key is in table.
func (rm *Manager) relationsOwnedBy(table string) []*Relation {
	defs := rm.schema.OwnedBy(table)
	rels := make([]*Relation, len(defs))
	for i, d := range defs {
		rels[i] = rm.relations[d.Name]
	}
	return rels
}

// relationsReferencing returns the live relations pointing at table.
func (rm *Manager) relationsReferencing(table string) []*Relation {
	defs := rm.schema.Referencing(table)
	rels := make([]*Relation, len(defs))
	for i, d := range defs {
		rels[i] = rm.relations[d.Name]
	}
	return rels
}
