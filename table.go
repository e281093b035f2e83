package veloxrm

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/syssam/veloxrm/dialect/sql"
	"github.com/syssam/veloxrm/repository"
	"github.com/syssam/veloxrm/schema"
)

// Table gives access to the records of one table within a session.
type Table struct {
	rm   *Manager
	def  *schema.Table
	repo *repository.Repository[*Record]
}

func newTable(rm *Manager, def *schema.Table) *Table {
	return &Table{
		rm:   rm,
		def:  def,
		repo: repository.New[*Record](def.Name),
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.def.Name }

// Definition returns the table metadata.
func (t *Table) Definition() *schema.Table { return t.def }

// Repository returns the identity map of the table.
func (t *Table) Repository() *repository.Repository[*Record] { return t.repo }

// NewRecord returns a new record holding the field defaults overridden by
// data. Foreign keys in data link the record to loaded referenced records.
func (t *Table) NewRecord(data map[string]any) (*Record, error) {
	rec := &Record{
		table:    t,
		token:    uuid.NewString(),
		fields:   make(map[string]any, len(t.def.Fields)),
		modified: make(map[string]any),
	}
	rec.id = rec.computeID()
	for _, f := range t.def.Fields {
		if f.Default != nil {
			rec.fields[f.Name] = f.Default
		}
	}
	if err := t.repo.Add(rec.id, rec); err != nil {
		return nil, err
	}
	t.rm.arena[rec.token] = rec
	if err := rec.FromMap(data); err != nil {
		t.rm.detach(rec)
		return nil, err
	}
	return rec, nil
}

// Hydrate returns the record of a persisted row. When a record with the
// same primary key is already loaded, that instance is returned unchanged.
func (t *Table) Hydrate(row map[string]any) (*Record, error) {
	recs, err := t.hydrate([]map[string]any{row})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (t *Table) hydrate(rows []map[string]any) ([]*Record, error) {
	set := &resultSet{records: make([]*Record, 0, len(rows))}
	for _, row := range rows {
		pk := make([]any, len(t.def.PrimaryKey))
		for i, f := range t.def.PrimaryKey {
			v, ok := row[f]
			if !ok || v == nil {
				return nil, fmt.Errorf("veloxrm: hydrate %s: missing primary key field %q", t.Name(), f)
			}
			pk[i] = normalize(v)
		}
		id := joinKey(pk)
		if rec, ok := t.repo.Get(id); ok {
			set.records = append(set.records, rec)
			continue
		}
		rec := &Record{
			table:    t,
			token:    uuid.NewString(),
			id:       id,
			fields:   make(map[string]any, len(t.def.Fields)),
			modified: make(map[string]any),
			exists:   true,
			set:      set,
		}
		for _, f := range t.def.Fields {
			if v, ok := row[f.Name]; ok {
				rec.fields[f.Name] = normalize(v)
			}
		}
		if err := t.repo.Add(id, rec); err != nil {
			return nil, err
		}
		t.rm.arena[rec.token] = rec
		for _, rel := range t.rm.relationsOwnedBy(t.Name()) {
			fk := rec.fields[rel.OwningField]
			if fk == nil {
				continue
			}
			key := fmt.Sprint(fk)
			if rel.refs.ToMany() || len(rel.refs.OwnersOf(key)) == 0 {
				rel.refs.Add(key, id)
			}
		}
		set.records = append(set.records, rec)
	}
	return set.records, nil
}

// Lookup returns the loaded record with the given primary key, without a query.
func (t *Table) Lookup(id ...any) (*Record, bool) {
	return t.repo.Get(joinKey(normalizeAll(id)))
}

// Records returns the loaded records in load order.
func (t *Table) Records() []*Record {
	return t.repo.All()
}

// Find returns the record with the given primary key, querying the database
// when it is not loaded.
func (t *Table) Find(ctx context.Context, id ...any) (*Record, error) {
	if len(id) != len(t.def.PrimaryKey) {
		return nil, fmt.Errorf("veloxrm: find %s: expect %d key values, got %d", t.Name(), len(t.def.PrimaryKey), len(id))
	}
	if rec, ok := t.Lookup(id...); ok {
		return rec, nil
	}
	preds := make([]*sql.Predicate, len(id))
	for i, f := range t.def.PrimaryKey {
		preds[i] = sql.EQ(f, id[i])
	}
	sel := sql.Dialect(t.rm.drv.Dialect()).Select().From(t.Name()).Where(sql.And(preds...)).Limit(1)
	recs, err := t.query(ctx, "find", sel)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(t.Name(), joinKey(id))
	}
	return recs[0], nil
}

// Select returns the records matching all field values of where, ordered by
// the given columns.
func (t *Table) Select(ctx context.Context, where map[string]any, orderBy ...string) ([]*Record, error) {
	fields := make([]string, 0, len(where))
	for f := range where {
		if !t.def.HasField(f) {
			return nil, NewValidationError(t.Name()+"."+f, ErrUnknownField)
		}
		fields = append(fields, f)
	}
	slices.Sort(fields)
	sel := sql.Dialect(t.rm.drv.Dialect()).Select().From(t.Name())
	for _, f := range fields {
		sel.Where(sql.EQ(f, where[f]))
	}
	sel.OrderBy(orderBy...)
	return t.query(ctx, "select", sel)
}

func (t *Table) query(ctx context.Context, op string, q sql.Querier) ([]*Record, error) {
	query, args := q.Query()
	var rows sql.Rows
	if err := t.rm.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, &QueryError{Table: t.Name(), Op: op, Err: err}
	}
	maps, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, &QueryError{Table: t.Name(), Op: op, Err: err}
	}
	t.rm.log.Debug("records loaded", "table", t.Name(), "op", op, "rows", len(maps))
	recs, err := t.hydrate(maps)
	if err != nil {
		return nil, &QueryError{Table: t.Name(), Op: op, Err: err}
	}
	return recs, nil
}

func normalizeAll(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = normalize(v)
	}
	return out
}
