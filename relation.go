package veloxrm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/veloxrm/contrib/dataloader"
	"github.com/syssam/veloxrm/dialect/sql"
	"github.com/syssam/veloxrm/refmap"
	"github.com/syssam/veloxrm/schema"
)

// Relation is the live state of one foreign key within a session: its
// metadata and the reference map shared by all records of both tables.
type Relation struct {
	*schema.Relation
	rm   *Manager
	refs *refmap.Map
	// displaced maps an owner token to the one-to-one owners that lost the
	// reference to it and still hold the key in the database.
	displaced map[string][]*Record
}

func newRelation(rm *Manager, def *schema.Relation) *Relation {
	return &Relation{
		Relation:  def,
		rm:        rm,
		refs:      refmap.New(def.Cardinality == schema.OneToMany),
		displaced: make(map[string][]*Record),
	}
}

// Refs returns the reference map of the relation.
func (r *Relation) Refs() *refmap.Map { return r.refs }

func (r *Relation) owning() *Table     { return r.rm.tables[r.OwningTable] }
func (r *Relation) referenced() *Table { return r.rm.tables[r.ReferencedTable] }

// toOwners resolves which side alias traverses from rec. It reports true
// when rec is the referenced record and alias reaches its owners.
func (r *Relation) toOwners(rec *Record, alias string) (bool, error) {
	switch {
	case alias == r.OwningAlias && rec.table.Name() == r.ReferencedTable:
		return true, nil
	case alias == r.ReferencedAlias && rec.table.Name() == r.OwningTable:
		return false, nil
	}
	return false, fmt.Errorf("veloxrm: relation %s has no alias %q on table %s", r.Name, alias, rec.table.Name())
}

// Reference returns what rec reaches under alias: a *Record or nil for
// to-one aliases, a *Collection for to-many aliases. Unloaded references
// are loaded for every record of the result set rec was hydrated with.
func (r *Relation) Reference(ctx context.Context, rec *Record, alias string) (any, error) {
	toOwners, err := r.toOwners(rec, alias)
	if err != nil {
		return nil, err
	}
	if !toOwners {
		ref, err := r.referenceOf(ctx, rec)
		if err != nil || ref == nil {
			return nil, err
		}
		return ref, nil
	}
	owners, err := r.ownersOf(ctx, rec)
	if err != nil {
		return nil, err
	}
	if r.IsToMany(alias) {
		return &Collection{rel: r, ref: rec}, nil
	}
	if len(owners) == 0 {
		return nil, nil
	}
	return owners[0], nil
}

// LoadedReference is like Reference but never queries. It returns a
// *NotLoadedError when the reference is unknown.
func (r *Relation) LoadedReference(rec *Record, alias string) (any, error) {
	toOwners, err := r.toOwners(rec, alias)
	if err != nil {
		return nil, err
	}
	if !toOwners {
		ref, ok := r.loadedReferenceOf(rec)
		switch {
		case !ok:
			return nil, NewNotLoadedError(alias)
		case ref == nil:
			return nil, nil
		}
		return ref, nil
	}
	known := !rec.exists || r.refs.IsComplete(rec.id)
	if r.IsToMany(alias) {
		if !known {
			return nil, NewNotLoadedError(alias)
		}
		return &Collection{rel: r, ref: rec}, nil
	}
	owners := r.loadedOwners(rec)
	switch {
	case len(owners) > 0:
		return owners[0], nil
	case known:
		return nil, nil
	}
	return nil, NewNotLoadedError(alias)
}

// SetReference assigns value to what rec reaches under alias. To-one
// aliases take a *Record or nil; to-many aliases take a *Collection, a
// []*Record or nil. Owners replaced on the referenced side get a nil
// foreign key. On a mismatch a *ReferenceTypeError is returned and no state
// is changed.
func (r *Relation) SetReference(ctx context.Context, rec *Record, alias string, value any) error {
	toOwners, err := r.toOwners(rec, alias)
	if err != nil {
		return err
	}
	if !toOwners {
		ref, err := r.toOne(alias, value, r.ReferencedTable)
		if err != nil {
			return err
		}
		if ref == nil {
			r.unlink(rec)
			rec.setValue(r.OwningField, nil)
		} else {
			r.link(rec, ref)
		}
		return nil
	}
	var owners []*Record
	if r.IsToMany(alias) {
		owners, err = r.toMany(alias, value)
	} else {
		var owner *Record
		if owner, err = r.toOne(alias, value, r.OwningTable); owner != nil {
			owners = []*Record{owner}
		}
	}
	if err != nil {
		return err
	}
	current, err := r.ownersOf(ctx, rec)
	if err != nil {
		return err
	}
	for _, o := range current {
		if !slices.Contains(owners, o) {
			r.unlink(o)
			o.setValue(r.OwningField, nil)
		}
	}
	for _, o := range owners {
		r.link(o, rec)
	}
	if !r.refs.ToMany() {
		r.refs.MarkComplete(rec.id)
		return nil
	}
	ids := make([]string, len(owners))
	for i, o := range owners {
		ids[i] = o.id
	}
	return r.refs.Set(rec.id, ids)
}

func (r *Relation) toOne(alias string, value any, table string) (*Record, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Record:
		if v == nil {
			return nil, nil
		}
		if v.table.Name() == table {
			return v, nil
		}
	}
	return nil, &ReferenceTypeError{Alias: alias, Want: "a " + table + " record or nil", Value: value}
}

func (r *Relation) toMany(alias string, value any) ([]*Record, error) {
	var recs []*Record
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Collection:
		if v != nil {
			recs = v.All()
		}
	case []*Record:
		recs = v
	default:
		return nil, &ReferenceTypeError{Alias: alias, Want: "a collection of " + r.OwningTable + " records or nil", Value: value}
	}
	for _, rec := range recs {
		if rec == nil || rec.table.Name() != r.OwningTable {
			return nil, &ReferenceTypeError{Alias: alias, Want: "a collection of " + r.OwningTable + " records or nil", Value: value}
		}
	}
	return recs, nil
}

// JoinOnCondition returns the join predicate for traversing alias from
// the table aliased fromAlias to the table aliased toAlias.
func (r *Relation) JoinOnCondition(alias, fromAlias, toAlias, dialect string) string {
	d := sql.Dialect(dialect)
	if r.IsOwningSide(alias) {
		return d.Quote(toAlias+"."+r.OwningField) + " = " + d.Quote(fromAlias+"."+r.ReferencedField)
	}
	return d.Quote(fromAlias+"."+r.OwningField) + " = " + d.Quote(toAlias+"."+r.ReferencedField)
}

// link points owner to ref. A referenced record without a persisted key is
// tracked by token until it is inserted.
func (r *Relation) link(owner, ref *Record) {
	r.unlink(owner)
	r.attach(owner, ref.id)
	if ref.exists {
		owner.setValue(r.OwningField, ref.fields[r.ReferencedField])
		return
	}
	r.refs.SetFieldMapping(owner.token, ref.token)
	owner.setValue(r.OwningField, nil)
}

// attach adds owner to refKey. On one-to-one relations the displaced owner
// loses its foreign key and is saved along with owner.
func (r *Relation) attach(owner *Record, refKey string) {
	displaced := r.refs.Add(refKey, owner.id)
	if displaced == "" || displaced == owner.id {
		return
	}
	if prev, ok := r.owning().repo.Get(displaced); ok {
		r.refs.RemoveFieldMapping(prev.token)
		prev.setValue(r.OwningField, nil)
		if prev.exists && !slices.Contains(r.displaced[owner.token], prev) {
			r.displaced[owner.token] = append(r.displaced[owner.token], prev)
		}
		r.rm.log.Debug("previous owner unlinked", "relation", r.Name, "owner", prev.String(), "reference", refKey)
	}
}

func (r *Relation) unlink(owner *Record) {
	r.refs.RemoveFieldMapping(owner.token)
	if key, ok := r.refs.ReferenceOf(owner.id); ok {
		r.refs.Remove(key, owner.id)
	}
}

// setForeignKey writes the foreign key of owner and links it to the
// referenced key, loaded or not.
func (r *Relation) setForeignKey(owner *Record, value any) {
	r.unlink(owner)
	if value != nil {
		r.attach(owner, fmt.Sprint(value))
	}
	owner.setValue(r.OwningField, value)
}

// loadedReferenceOf returns the referenced record of owner if it is known
// without a query. A nil record with true means the foreign key is null.
func (r *Relation) loadedReferenceOf(owner *Record) (*Record, bool) {
	if tok, ok := r.refs.FieldMapping(owner.token); ok {
		if ref, ok := r.rm.arena[tok]; ok {
			return ref, true
		}
	}
	fk := owner.fields[r.OwningField]
	if fk == nil {
		return nil, true
	}
	return r.referenced().repo.Get(fmt.Sprint(fk))
}

func (r *Relation) referenceOf(ctx context.Context, owner *Record) (*Record, error) {
	if ref, ok := r.loadedReferenceOf(owner); ok {
		return ref, nil
	}
	if err := r.loadReferenced(ctx, owner.siblings()); err != nil {
		return nil, err
	}
	ref, _ := r.loadedReferenceOf(owner)
	return ref, nil
}

// loadReferenced loads the unloaded referenced records of owners in batches.
func (r *Relation) loadReferenced(ctx context.Context, owners []*Record) error {
	values := make(map[string]any)
	var keys []string
	for _, o := range owners {
		if o.table != r.owning() || r.refs.HasFieldMapping(o.token) {
			continue
		}
		fk := o.fields[r.OwningField]
		if fk == nil {
			continue
		}
		key := fmt.Sprint(fk)
		if r.referenced().repo.Has(key) {
			continue
		}
		values[key] = fk
		keys = append(keys, key)
	}
	keys = dataloader.Unique(keys)
	if len(keys) == 0 {
		return nil
	}
	refs, err := dataloader.Batch(ctx, keys, r.rm.cfg.batchSize, func(ctx context.Context, keys []string) ([]*Record, error) {
		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = values[k]
		}
		sel := sql.Dialect(r.rm.drv.Dialect()).Select().
			From(r.ReferencedTable).
			Where(sql.In(r.ReferencedField, args...))
		return r.referenced().query(ctx, "load "+r.ReferencedAlias, sel)
	})
	if err != nil {
		return err
	}
	_, errs := dataloader.OrderByKeys(keys, refs, func(rec *Record) string {
		return fmt.Sprint(rec.fields[r.ReferencedField])
	})
	for i, err := range errs {
		if errors.Is(err, dataloader.ErrNotFound) {
			r.rm.log.Debug("dangling foreign key", "relation", r.Name, "key", keys[i])
		}
	}
	return nil
}

// loadedOwners returns the known owners of ref in link order.
func (r *Relation) loadedOwners(ref *Record) []*Record {
	ids := r.refs.OwnersOf(ref.id)
	owners := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.owning().repo.Get(id); ok {
			owners = append(owners, o)
		}
	}
	return owners
}

func (r *Relation) ownersOf(ctx context.Context, ref *Record) ([]*Record, error) {
	if ref.exists && !r.refs.IsComplete(ref.id) {
		if err := r.loadOwners(ctx, ref.siblings()); err != nil {
			return nil, err
		}
	}
	return r.loadedOwners(ref), nil
}

// loadOwners loads the owners of every persisted record of refs whose owner
// set is not complete. In-memory links take precedence over stored keys.
func (r *Relation) loadOwners(ctx context.Context, refs []*Record) error {
	var (
		targets []*Record
		keys    []string
	)
	values := make(map[string]any)
	for _, rec := range refs {
		if rec.table != r.referenced() || !rec.exists || r.refs.IsComplete(rec.id) {
			continue
		}
		if _, ok := values[rec.id]; ok {
			continue
		}
		values[rec.id] = rec.fields[r.ReferencedField]
		targets = append(targets, rec)
		keys = append(keys, rec.id)
	}
	if len(keys) == 0 {
		return nil
	}
	owners, err := dataloader.Batch(ctx, keys, r.rm.cfg.batchSize, func(ctx context.Context, keys []string) ([]*Record, error) {
		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = values[k]
		}
		sel := sql.Dialect(r.rm.drv.Dialect()).Select().
			From(r.OwningTable).
			Where(sql.In(r.OwningField, args...)).
			OrderExpr(r.OrderBy)
		return r.owning().query(ctx, "load "+r.OwningAlias, sel)
	})
	if err != nil {
		return err
	}
	groups := dataloader.GroupByKey(owners, func(o *Record) string {
		fk := o.fields[r.OwningField]
		if fk == nil || r.refs.HasFieldMapping(o.token) {
			return ""
		}
		return fmt.Sprint(fk)
	})
	for i, stored := range dataloader.OrderGroupsByKeys(keys, groups) {
		ref := targets[i]
		linked := r.refs.OwnersOf(ref.id)
		if !r.refs.ToMany() {
			switch {
			case len(linked) > 0:
				if err := r.refs.Set(ref.id, linked[0]); err != nil {
					return err
				}
			case len(stored) > 0:
				if err := r.refs.Set(ref.id, stored[0].id); err != nil {
					return err
				}
			default:
				r.refs.MarkComplete(ref.id)
			}
			continue
		}
		ids := make([]string, 0, len(stored)+len(linked))
		for _, o := range stored {
			ids = append(ids, o.id)
		}
		for _, id := range linked {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if err := r.refs.Set(ref.id, ids); err != nil {
			return err
		}
	}
	return nil
}
