package veloxrm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/syssam/veloxrm/dialect"
	"github.com/syssam/veloxrm/dialect/sql"
	"github.com/syssam/veloxrm/refmap"
	"github.com/syssam/veloxrm/repository"
)

// CommitChanges executes the scheduled operations in one pass: saves
// first, referenced records before their owners, then deletes, owners
// before the records they reference. Ties keep the scheduling order.
//
// On failure the transaction is rolled back, the session state is restored
// to what it was before the call, the schedule is emptied and a
// *MutationError is returned. Without a transaction, statements executed
// before the failure stay applied.
func (u *UnitOfWork) CommitChanges(ctx context.Context) error {
	if len(u.order) == 0 {
		return nil
	}
	start := time.Now()
	var saves, deletes []*Record
	for _, rec := range u.Scheduled() {
		if u.ops[rec.token].Is(OpDelete) {
			deletes = append(deletes, rec)
		} else {
			saves = append(saves, rec)
		}
	}
	snap := u.rm.snapshot()
	tx, err := u.rm.begin(ctx)
	if err != nil {
		u.Reset()
		return fmt.Errorf("veloxrm: starting transaction: %w", err)
	}
	c := &committer{
		rm:       u.rm,
		tx:       tx,
		dialect:  u.rm.drv.Dialect(),
		executed: make(map[string]bool),
	}
	if merr := c.run(ctx, saves, deletes); merr != nil {
		if rerr := tx.Rollback(); rerr != nil {
			u.rm.log.Warn("transaction rollback failed", "error", rerr)
			merr.Err = errors.Join(merr.Err, &RollbackError{Err: rerr})
		}
		u.rm.restore(snap)
		u.Reset()
		return merr
	}
	if err := tx.Commit(); err != nil {
		u.rm.restore(snap)
		u.Reset()
		return fmt.Errorf("veloxrm: committing transaction: %w", err)
	}
	for _, rel := range u.rm.relations {
		maps.DeleteFunc(rel.displaced, func(tok string, _ []*Record) bool { return c.executed[tok] })
	}
	u.Reset()
	u.rm.log.Info("changes committed",
		"inserts", c.inserts,
		"updates", c.updates,
		"deletes", c.deletes,
		"duration", time.Since(start),
	)
	return nil
}

func (rm *Manager) begin(ctx context.Context) (dialect.Tx, error) {
	if !rm.cfg.tx {
		return dialect.NopTx(rm.drv), nil
	}
	return rm.drv.Tx(ctx)
}

type committer struct {
	rm       *Manager
	tx       dialect.Tx
	dialect  string
	executed map[string]bool // tokens of records already written
	late     []*Record       // written before their referenced record got a key
	prenull  map[*Record][]*Record

	inserts, updates, deletes int
}

func (c *committer) run(ctx context.Context, saves, deletes []*Record) *MutationError {
	for _, rec := range c.orderSaves(saves) {
		var err *MutationError
		if rec.exists {
			err = c.update(ctx, rec)
		} else {
			err = c.insert(ctx, rec)
		}
		if err != nil {
			return err
		}
	}
	for _, rec := range c.late {
		if err := c.update(ctx, rec); err != nil {
			return err
		}
	}
	for _, rec := range c.orderDeletes(deletes) {
		for _, owner := range c.prenull[rec] {
			if err := c.nullify(ctx, owner, rec); err != nil {
				return err
			}
		}
		if err := c.delete(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// orderSaves puts every new or re-keyed referenced record ahead of the
// owners storing its key, and displaced one-to-one owners ahead of the
// owner taking their key.
func (c *committer) orderSaves(saves []*Record) []*Record {
	g := newCommitGraph(saves)
	for _, owner := range saves {
		for _, rel := range c.rm.relationsOwnedBy(owner.table.Name()) {
			var ref *Record
			if tok, ok := rel.refs.FieldMapping(owner.token); ok {
				ref = c.rm.arena[tok]
			} else if key, ok := rel.refs.ReferenceOf(owner.id); ok {
				if r, ok := rel.referenced().repo.Get(key); ok && r.exists && r.IsFieldModified(rel.ReferencedField) {
					ref = r
				}
			}
			if ref != nil && g.has(ref) {
				g.edge(ref, owner)
			}
			for _, prev := range rel.displaced[owner.token] {
				if g.has(prev) {
					g.edge(prev, owner)
				}
			}
		}
	}
	return g.sort(func(rec *Record, pending []*Record) {
		c.rm.log.Debug("save cycle broken", "record", rec.String(), "pending", len(pending))
	})
}

// orderDeletes puts owners ahead of the records their persisted foreign
// keys reference. A cycle is broken at the earliest scheduled record after
// nulling the nullable keys still pointing at it.
func (c *committer) orderDeletes(deletes []*Record) []*Record {
	g := newCommitGraph(deletes)
	for _, owner := range deletes {
		for _, rel := range c.rm.relationsOwnedBy(owner.table.Name()) {
			fk := owner.Original(rel.OwningField)
			if fk == nil {
				continue
			}
			if ref, ok := rel.referenced().repo.Get(fmt.Sprint(fk)); ok && ref != owner && g.has(ref) {
				g.edge(owner, ref)
			}
		}
	}
	c.prenull = make(map[*Record][]*Record)
	return g.sort(func(rec *Record, pending []*Record) {
		c.rm.log.Debug("delete cycle broken", "record", rec.String(), "pending", len(pending))
		c.prenull[rec] = pending
	})
}

func (c *committer) insert(ctx context.Context, rec *Record) *MutationError {
	def := rec.table.def
	var (
		cols []string
		vals []any
	)
	for _, f := range def.Fields {
		v, ok := rec.fields[f.Name]
		if !ok || (v == nil && def.IsPrimaryKey(f.Name)) {
			continue
		}
		cols = append(cols, f.Name)
		vals = append(vals, v)
	}
	if err := c.allow(ctx, OpCreate, rec, cols); err != nil {
		return err
	}
	b := sql.Dialect(c.dialect).Insert(def.Name)
	if len(cols) == 0 {
		b.Default()
	} else {
		b.Columns(cols...).Values(vals...)
	}
	pk := def.PrimaryKey[0]
	auto := def.AutoIncrement && rec.fields[pk] == nil
	if auto && c.dialect == dialect.Postgres {
		query, args := b.Returning(pk).Query()
		c.log(query, args)
		var rows sql.Rows
		if err := c.tx.Query(ctx, query, args, &rows); err != nil {
			return c.fail(rec, OpCreate, err)
		}
		var id any
		if err := sql.ScanValue(rows, &id); err != nil {
			return c.fail(rec, OpCreate, err)
		}
		rec.fields[pk] = normalize(id)
	} else {
		query, args := b.Query()
		c.log(query, args)
		var res sql.Result
		if err := c.tx.Exec(ctx, query, args, &res); err != nil {
			return c.fail(rec, OpCreate, err)
		}
		if auto {
			id, err := res.LastInsertId()
			if err != nil {
				return c.fail(rec, OpCreate, err)
			}
			rec.fields[pk] = id
		}
	}
	rec.exists = true
	clear(rec.modified)
	if err := c.rm.rekey(rec, rec.computeID()); err != nil {
		return c.fail(rec, OpCreate, err)
	}
	c.executed[rec.token] = true
	c.resolveMappings(rec)
	c.inserts++
	return nil
}

// resolveMappings writes the key of a just inserted record into the owners
// that were linked to it by token.
func (c *committer) resolveMappings(rec *Record) {
	for _, rel := range c.rm.relationsReferencing(rec.table.Name()) {
		for _, tok := range rel.refs.OwnersMappedTo(rec.token) {
			rel.refs.RemoveFieldMapping(tok)
			owner, ok := c.rm.arena[tok]
			if !ok {
				continue
			}
			owner.setValue(rel.OwningField, rec.fields[rel.ReferencedField])
			if c.executed[tok] && !slices.Contains(c.late, owner) {
				c.late = append(c.late, owner)
			}
		}
	}
}

func (c *committer) update(ctx context.Context, rec *Record) *MutationError {
	fields := rec.ModifiedFields()
	if len(fields) == 0 {
		c.executed[rec.token] = true
		return nil
	}
	if err := c.allow(ctx, OpUpdate, rec, fields); err != nil {
		return err
	}
	b := sql.Dialect(c.dialect).Update(rec.table.Name())
	for _, f := range fields {
		b.Set(f, rec.fields[f])
	}
	query, args := b.Where(keyPredicate(rec)).Query()
	c.log(query, args)
	if err := c.tx.Exec(ctx, query, args, nil); err != nil {
		return c.fail(rec, OpUpdate, err)
	}
	clear(rec.modified)
	c.executed[rec.token] = true
	c.updates++
	return nil
}

// nullify clears the nullable foreign keys of owner that still hold the
// key of ref.
func (c *committer) nullify(ctx context.Context, owner, ref *Record) *MutationError {
	b := sql.Dialect(c.dialect).Update(owner.table.Name())
	for _, rel := range c.rm.relationsOwnedBy(owner.table.Name()) {
		f, _ := owner.table.def.Field(rel.OwningField)
		fk := owner.Original(rel.OwningField)
		if rel.ReferencedTable == ref.table.Name() && f.Nullable && fk != nil && fmt.Sprint(fk) == ref.id {
			b.Set(rel.OwningField, nil)
		}
	}
	if b.Empty() {
		return nil
	}
	query, args := b.Where(keyPredicate(owner)).Query()
	c.log(query, args)
	if err := c.tx.Exec(ctx, query, args, nil); err != nil {
		return c.fail(owner, OpUpdate, err)
	}
	return nil
}

func (c *committer) delete(ctx context.Context, rec *Record) *MutationError {
	if err := c.allow(ctx, OpDelete, rec, nil); err != nil {
		return err
	}
	query, args := sql.Dialect(c.dialect).Delete(rec.table.Name()).Where(keyPredicate(rec)).Query()
	c.log(query, args)
	if err := c.tx.Exec(ctx, query, args, nil); err != nil {
		return c.fail(rec, OpDelete, err)
	}
	c.rm.detach(rec)
	rec.exists = false
	c.deletes++
	return nil
}

func (c *committer) allow(ctx context.Context, op Op, rec *Record, fields []string) *MutationError {
	p := c.rm.cfg.policy
	if p == nil {
		return nil
	}
	if err := p.EvalMutation(ctx, &mutation{op: op, rec: rec, fields: fields}); err != nil {
		return c.fail(rec, op, &PrivacyError{Table: rec.table.Name(), Op: op, Err: err})
	}
	return nil
}

func (c *committer) fail(rec *Record, op Op, err error) *MutationError {
	return &MutationError{Table: rec.table.Name(), Op: op, Err: err}
}

func (c *committer) log(query string, args []any) {
	c.rm.log.Debug("exec", "query", query, "args", args)
}

// keyPredicate matches the persisted primary key of rec.
func keyPredicate(rec *Record) *sql.Predicate {
	pk := rec.table.def.PrimaryKey
	preds := make([]*sql.Predicate, len(pk))
	for i, f := range pk {
		preds[i] = sql.EQ(f, rec.Original(f))
	}
	return sql.And(preds...)
}

// commitGraph is a dependency graph over scheduled records.
type commitGraph struct {
	nodes []*Record
	index map[*Record]int
	succ  map[*Record][]*Record
	pred  map[*Record][]*Record
}

func newCommitGraph(nodes []*Record) *commitGraph {
	g := &commitGraph{
		nodes: nodes,
		index: make(map[*Record]int, len(nodes)),
		succ:  make(map[*Record][]*Record),
		pred:  make(map[*Record][]*Record),
	}
	for i, n := range nodes {
		g.index[n] = i
	}
	return g
}

func (g *commitGraph) has(n *Record) bool {
	_, ok := g.index[n]
	return ok
}

// edge records that before must run ahead of after.
func (g *commitGraph) edge(before, after *Record) {
	if before == after || slices.Contains(g.succ[before], after) {
		return
	}
	g.succ[before] = append(g.succ[before], after)
	g.pred[after] = append(g.pred[after], before)
}

// sort returns the nodes in dependency order, picking the earliest node
// among the ready ones. When only cycles remain, the earliest pending node
// is released and reported with its pending predecessors.
func (g *commitGraph) sort(onCycle func(n *Record, pending []*Record)) []*Record {
	indeg := make(map[*Record]int, len(g.nodes))
	for n, ps := range g.pred {
		indeg[n] = len(ps)
	}
	var ready []int
	push := func(n *Record) {
		i := g.index[n]
		pos, _ := slices.BinarySearch(ready, i)
		ready = slices.Insert(ready, pos, i)
	}
	for _, n := range g.nodes {
		if indeg[n] == 0 {
			push(n)
		}
	}
	done := make(map[*Record]bool, len(g.nodes))
	out := make([]*Record, 0, len(g.nodes))
	for len(out) < len(g.nodes) {
		if len(ready) == 0 {
			for _, n := range g.nodes {
				if done[n] {
					continue
				}
				var pending []*Record
				for _, p := range g.pred[n] {
					if !done[p] {
						pending = append(pending, p)
					}
				}
				onCycle(n, pending)
				indeg[n] = 0
				push(n)
				break
			}
		}
		n := g.nodes[ready[0]]
		ready = ready[1:]
		done[n] = true
		out = append(out, n)
		for _, s := range g.succ[n] {
			indeg[s]--
			if indeg[s] == 0 && !done[s] {
				push(s)
			}
		}
	}
	return out
}

// sessionSnapshot is the bookkeeping state restored when a commit fails.
type sessionSnapshot struct {
	repos     map[*Table]*repository.Snapshot[*Record]
	refs      map[*Relation]*refmap.Map
	displaced map[*Relation]map[string][]*Record
	arena     map[string]*Record
	records   []recordState
}

type recordState struct {
	rec      *Record
	id       string
	exists   bool
	fields   map[string]any
	modified map[string]any
}

func (rm *Manager) snapshot() *sessionSnapshot {
	s := &sessionSnapshot{
		repos:     make(map[*Table]*repository.Snapshot[*Record], len(rm.tables)),
		refs:      make(map[*Relation]*refmap.Map, len(rm.relations)),
		displaced: make(map[*Relation]map[string][]*Record, len(rm.relations)),
		arena:     maps.Clone(rm.arena),
		records:   make([]recordState, 0, len(rm.arena)),
	}
	for _, t := range rm.tables {
		s.repos[t] = t.repo.Snapshot()
	}
	for _, r := range rm.relations {
		s.refs[r] = r.refs.Clone()
		s.displaced[r] = maps.Clone(r.displaced)
	}
	for _, rec := range rm.arena {
		s.records = append(s.records, recordState{
			rec:      rec,
			id:       rec.id,
			exists:   rec.exists,
			fields:   maps.Clone(rec.fields),
			modified: maps.Clone(rec.modified),
		})
	}
	return s
}

func (rm *Manager) restore(s *sessionSnapshot) {
	for t, snap := range s.repos {
		t.repo.Restore(snap)
	}
	for r, m := range s.refs {
		r.refs = m
	}
	for r, d := range s.displaced {
		r.displaced = d
	}
	rm.arena = s.arena
	for _, st := range s.records {
		st.rec.id = st.id
		st.rec.exists = st.exists
		st.rec.fields = st.fields
		st.rec.modified = st.modified
	}
}
