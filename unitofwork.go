package veloxrm

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/veloxrm/dialect/sqlschema"
)

// UnitOfWork holds the operations scheduled for the next commit, keyed by
// record token in scheduling order.
type UnitOfWork struct {
	rm    *Manager
	ops   map[string]Op
	order []string
}

func newUnitOfWork(rm *Manager) *UnitOfWork {
	return &UnitOfWork{rm: rm, ops: make(map[string]Op)}
}

// Len returns the number of scheduled records.
func (u *UnitOfWork) Len() int { return len(u.order) }

// Scheduled returns the scheduled records in scheduling order.
func (u *UnitOfWork) Scheduled() []*Record {
	recs := make([]*Record, 0, len(u.order))
	for _, tok := range u.order {
		if rec, ok := u.rm.arena[tok]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// IsRecordScheduledForCommit reports whether rec is scheduled for op.
// OpSave matches records scheduled for insert or update.
func (u *UnitOfWork) IsRecordScheduledForCommit(rec *Record, op Op) bool {
	return u.ops[rec.token].Is(op)
}

// Unschedule removes rec from the schedule. Reference changes made while
// scheduling are kept.
func (u *UnitOfWork) Unschedule(rec *Record) {
	if _, ok := u.ops[rec.token]; !ok {
		return
	}
	delete(u.ops, rec.token)
	u.order = slices.DeleteFunc(u.order, func(tok string) bool { return tok == rec.token })
}

// Rollback drops all scheduled operations. The database and the records
// are not touched.
func (u *UnitOfWork) Rollback() {
	u.Reset()
}

// Reset empties the schedule.
func (u *UnitOfWork) Reset() {
	clear(u.ops)
	u.order = u.order[:0]
}

func (u *UnitOfWork) schedule(tok string, op Op) {
	if _, ok := u.ops[tok]; !ok {
		u.order = append(u.order, tok)
	}
	u.ops[tok] = op
}

// fkChange is a foreign key write staged by a scheduling call.
type fkChange struct {
	rel   *Relation
	owner *Record
	value any
}

// savePlan collects the effects of one ScheduleSave call. It is merged into
// the unit of work only when the whole call succeeds.
type savePlan struct {
	u       *UnitOfWork
	visited map[string]bool
	order   []*Record
	fks     []fkChange
}

// ScheduleSave schedules rec for saving. With considerReferences, new or
// modified records reachable through loaded references are scheduled too;
// unloaded references are never queried. A persisted record whose key
// changed applies the OnUpdate action of the relations referencing it.
func (u *UnitOfWork) ScheduleSave(ctx context.Context, rec *Record, considerReferences bool) error {
	if rec.table.def.View {
		return fmt.Errorf("veloxrm: save %s: %w", rec, ErrReadOnly)
	}
	if _, ok := u.rm.arena[rec.token]; !ok {
		return fmt.Errorf("veloxrm: save %s: %w", rec, ErrDetached)
	}
	if op := u.ops[rec.token]; op.Is(OpDelete) {
		return &TransitionError{Record: rec.String(), From: op, To: OpSave}
	}
	p := &savePlan{u: u, visited: make(map[string]bool)}
	if err := p.walk(rec, true, considerReferences); err != nil {
		return err
	}
	for _, c := range p.fks {
		if c.value == nil {
			c.rel.unlink(c.owner)
		}
		c.owner.setValue(c.rel.OwningField, c.value)
	}
	for _, r := range p.order {
		if !u.ops[r.token].Is(OpSave) {
			u.schedule(r.token, OpSave)
		}
	}
	u.rm.log.Debug("scheduled save", "record", rec.String(), "records", len(p.order))
	return nil
}

func (p *savePlan) walk(rec *Record, root, considerReferences bool) error {
	if p.visited[rec.token] {
		return nil
	}
	p.visited[rec.token] = true
	if _, ok := p.u.rm.arena[rec.token]; !ok {
		return nil
	}
	if !root && (rec.table.def.View || p.u.ops[rec.token].Is(OpDelete)) {
		return nil
	}
	if root || needsSave(rec) {
		p.order = append(p.order, rec)
	}
	if err := p.keyChanged(rec); err != nil {
		return err
	}
	for _, rel := range p.u.rm.relationsOwnedBy(rec.table.Name()) {
		for _, prev := range rel.displaced[rec.token] {
			if err := p.walk(prev, false, false); err != nil {
				return err
			}
		}
	}
	if !considerReferences {
		return nil
	}
	for _, rel := range p.u.rm.relationsOwnedBy(rec.table.Name()) {
		ref, ok := rel.loadedReferenceOf(rec)
		if !ok || ref == nil {
			continue
		}
		if err := p.walk(ref, false, true); err != nil {
			return err
		}
	}
	for _, rel := range p.u.rm.relationsReferencing(rec.table.Name()) {
		for _, owner := range rel.loadedOwners(rec) {
			if err := p.walk(owner, false, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// keyChanged applies OnUpdate to the loaded owners of a persisted record
// whose referenced field was modified.
func (p *savePlan) keyChanged(rec *Record) error {
	if !rec.exists {
		return nil
	}
	for _, rel := range p.u.rm.relationsReferencing(rec.table.Name()) {
		if !rec.IsFieldModified(rel.ReferencedField) || rel.owning().def.View {
			continue
		}
		value := rec.fields[rel.ReferencedField]
		var owners []*Record
		for _, o := range rel.loadedOwners(rec) {
			if !p.u.ops[o.token].Is(OpDelete) && !valuesEqual(o.fields[rel.OwningField], value) {
				owners = append(owners, o)
			}
		}
		if len(owners) == 0 {
			continue
		}
		switch rel.OnUpdate {
		case sqlschema.Cascade:
			for _, o := range owners {
				p.fks = append(p.fks, fkChange{rel: rel, owner: o, value: value})
				p.force(o)
			}
		case sqlschema.SetNull:
			for _, o := range owners {
				p.fks = append(p.fks, fkChange{rel: rel, owner: o})
				p.force(o)
			}
		default:
			return &ConstraintError{
				Relation:   rel.Name,
				Action:     rel.OnUpdate,
				Op:         OpUpdate,
				Record:     rec.String(),
				Dependents: recordIDs(owners),
			}
		}
	}
	return nil
}

// force schedules rec regardless of its modification state.
func (p *savePlan) force(rec *Record) {
	if !slices.Contains(p.order, rec) {
		p.order = append(p.order, rec)
	}
}

// needsSave reports whether rec has changes to write, including foreign
// keys that wait for a referenced record to be inserted.
func needsSave(rec *Record) bool {
	if rec.IsModified() {
		return true
	}
	for _, rel := range rec.table.rm.relationsOwnedBy(rec.table.Name()) {
		if rel.refs.HasFieldMapping(rec.token) {
			return true
		}
	}
	return false
}

// deletePlan collects the effects of one ScheduleDelete call.
type deletePlan struct {
	u        *UnitOfWork
	in       map[string]bool
	order    []*Record
	blocked  []blockedDelete
	setNulls []fkChange
}

type blockedDelete struct {
	rel    *Relation
	ref    *Record
	owners []*Record
}

// ScheduleDelete schedules rec for deleting and applies the OnDelete action
// of every relation referencing it, transitively: CASCADE deletes the
// owners, SET NULL saves them with a null foreign key, RESTRICT and NO
// ACTION fail with a *ConstraintError when an owner remains. Owners are
// queried when not loaded. Nothing is scheduled when the call fails. New
// records are discarded instead of deleted.
func (u *UnitOfWork) ScheduleDelete(ctx context.Context, rec *Record) error {
	if rec.table.def.View {
		return fmt.Errorf("veloxrm: delete %s: %w", rec, ErrReadOnly)
	}
	if _, ok := u.rm.arena[rec.token]; !ok {
		return fmt.Errorf("veloxrm: delete %s: %w", rec, ErrDetached)
	}
	p := &deletePlan{u: u, in: make(map[string]bool)}
	if err := p.collect(ctx, rec); err != nil {
		return err
	}
	for _, b := range p.blocked {
		var remaining []*Record
		for _, o := range b.owners {
			if !p.in[o.token] && !u.ops[o.token].Is(OpDelete) {
				remaining = append(remaining, o)
			}
		}
		if len(remaining) > 0 {
			return &ConstraintError{
				Relation:   b.rel.Name,
				Action:     b.rel.OnDelete,
				Op:         OpDelete,
				Record:     b.ref.String(),
				Dependents: recordIDs(remaining),
			}
		}
	}
	for _, c := range p.setNulls {
		if p.in[c.owner.token] || u.ops[c.owner.token].Is(OpDelete) {
			continue
		}
		c.rel.unlink(c.owner)
		c.owner.setValue(c.rel.OwningField, nil)
		if c.owner.exists && !u.ops[c.owner.token].Is(OpSave) {
			u.schedule(c.owner.token, OpSave)
		}
	}
	deleted := 0
	for _, r := range p.order {
		if !r.exists {
			u.Unschedule(r)
			u.rm.detach(r)
			continue
		}
		u.schedule(r.token, OpDelete)
		deleted++
	}
	u.rm.log.Debug("scheduled delete", "record", rec.String(), "deletes", deleted, "set_null", len(p.setNulls))
	return nil
}

func (p *deletePlan) collect(ctx context.Context, rec *Record) error {
	if p.in[rec.token] {
		return nil
	}
	p.in[rec.token] = true
	p.order = append(p.order, rec)
	for _, rel := range p.u.rm.relationsReferencing(rec.table.Name()) {
		if rel.owning().def.View {
			continue
		}
		owners, err := rel.ownersOf(ctx, rec)
		if err != nil {
			return err
		}
		if len(owners) == 0 {
			continue
		}
		switch rel.OnDelete {
		case sqlschema.Cascade:
			for _, o := range owners {
				if err := p.collect(ctx, o); err != nil {
					return err
				}
			}
		case sqlschema.SetNull:
			for _, o := range owners {
				p.setNulls = append(p.setNulls, fkChange{rel: rel, owner: o})
			}
		default:
			p.blocked = append(p.blocked, blockedDelete{rel: rel, ref: rec, owners: owners})
		}
	}
	return nil
}

// detach removes a record from the session: its reference state, its
// identity map entry and the arena.
func (rm *Manager) detach(rec *Record) {
	for _, rel := range rm.relationsOwnedBy(rec.table.Name()) {
		rel.unlink(rec)
		delete(rel.displaced, rec.token)
	}
	for _, rel := range rm.relationsReferencing(rec.table.Name()) {
		for _, tok := range rel.refs.OwnersMappedTo(rec.token) {
			rel.refs.RemoveFieldMapping(tok)
		}
		rel.refs.Forget(rec.id)
	}
	if cur, ok := rec.table.repo.Get(rec.id); ok && cur == rec {
		rec.table.repo.Remove(rec.id)
	}
	delete(rm.arena, rec.token)
}

func recordIDs(recs []*Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.id
	}
	return ids
}
