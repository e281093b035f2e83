package veloxrm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/syssam/veloxrm/repository"
)

// newPrefix marks the internal identifier of a record that was never
// persisted.
const newPrefix = "_new_"

// keySeparator joins the values of a composite primary key.
const keySeparator = "|"

// Record is one row of a table, persisted or pending.
type Record struct {
	table    *Table
	token    string
	id       string
	fields   map[string]any
	modified map[string]any // field -> last persisted value
	mapped   map[string]any
	exists   bool
	set      *resultSet
}

// resultSet groups the records hydrated by one query. Lazy loads resolve
// references for the whole set in one statement.
type resultSet struct {
	records []*Record
}

// Table returns the table of the record.
func (r *Record) Table() *Table { return r.table }

// Token returns the process-unique token assigned at construction.
func (r *Record) Token() string { return r.token }

// InternalID returns the identity key of the record: the primary key once
// persisted, otherwise a marker built from the record token.
func (r *Record) InternalID() string { return r.id }

// Exists reports whether the record is persisted.
func (r *Record) Exists() bool { return r.exists }

// IsNew reports whether the record was never persisted.
func (r *Record) IsNew() bool { return !r.exists }

// Identifier returns the primary key values in key order.
func (r *Record) Identifier() []any {
	pk := r.table.def.PrimaryKey
	vs := make([]any, len(pk))
	for i, f := range pk {
		vs[i] = r.fields[f]
	}
	return vs
}

// Get returns the value of a field, or nil when it is unset or unknown.
func (r *Record) Get(field string) any {
	return r.fields[field]
}

// Has reports whether the field holds a value, including an explicit nil.
func (r *Record) Has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

// Set writes a field. Writing a foreign key updates the reference state of
// its relation. Writing the primary key of a persisted record re-keys the
// record in its table and in every relation.
func (r *Record) Set(field string, value any) error {
	if !r.table.def.HasField(field) {
		return NewValidationError(r.table.Name()+"."+field, ErrUnknownField)
	}
	value = normalize(value)
	if r.exists && r.table.def.IsPrimaryKey(field) {
		return r.setPrimaryKey(field, value)
	}
	if rel, ok := r.table.rm.relationByField(r.table.Name(), field); ok {
		rel.setForeignKey(r, value)
		return nil
	}
	r.setValue(field, value)
	return nil
}

func (r *Record) setPrimaryKey(field string, value any) error {
	prev, had := r.fields[field]
	prevMod, wasMod := r.modified[field]
	r.setValue(field, value)
	if err := r.table.rm.rekey(r, r.computeID()); err != nil {
		if had {
			r.fields[field] = prev
		} else {
			delete(r.fields, field)
		}
		if wasMod {
			r.modified[field] = prevMod
		} else {
			delete(r.modified, field)
		}
		return err
	}
	return nil
}

// setValue writes a field without reference bookkeeping and tracks its
// modification against the last persisted value.
func (r *Record) setValue(field string, value any) {
	if r.exists {
		if orig, ok := r.modified[field]; ok {
			if valuesEqual(orig, value) {
				delete(r.modified, field)
			}
		} else if cur := r.fields[field]; !valuesEqual(cur, value) {
			r.modified[field] = cur
		}
	}
	r.fields[field] = value
}

// IsModified reports whether the record differs from its persisted state.
// New records are always modified.
func (r *Record) IsModified() bool {
	return !r.exists || len(r.modified) > 0
}

// IsFieldModified reports whether the field differs from its persisted value.
func (r *Record) IsFieldModified(field string) bool {
	if !r.exists {
		_, ok := r.fields[field]
		return ok
	}
	_, ok := r.modified[field]
	return ok
}

// ModifiedFields returns the modified fields in table order. For new records
// these are all fields holding a value.
func (r *Record) ModifiedFields() []string {
	var fields []string
	for _, f := range r.table.def.Fields {
		if r.IsFieldModified(f.Name) {
			fields = append(fields, f.Name)
		}
	}
	return fields
}

// Original returns the last persisted value of a field.
func (r *Record) Original(field string) any {
	if v, ok := r.modified[field]; ok {
		return v
	}
	return r.fields[field]
}

// SetMapped stores a virtual value that is never persisted.
func (r *Record) SetMapped(name string, value any) {
	if r.mapped == nil {
		r.mapped = make(map[string]any)
	}
	r.mapped[name] = value
}

// Mapped returns a virtual value.
func (r *Record) Mapped(name string) (any, bool) {
	v, ok := r.mapped[name]
	return v, ok
}

// ToMap returns a copy of the field values.
func (r *Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return m
}

// FromMap sets every field of data. It stops at the first unknown field.
func (r *Record) FromMap(data map[string]any) error {
	for _, f := range r.table.def.Fields {
		if v, ok := data[f.Name]; ok {
			if err := r.Set(f.Name, v); err != nil {
				return err
			}
		}
	}
	for k := range data {
		if !r.table.def.HasField(k) {
			return NewValidationError(r.table.Name()+"."+k, ErrUnknownField)
		}
	}
	return nil
}

// Reference returns the record or the *Collection reachable under alias,
// loading it when needed.
func (r *Record) Reference(ctx context.Context, alias string) (any, error) {
	rel, err := r.relation(alias)
	if err != nil {
		return nil, err
	}
	return rel.Reference(ctx, r, alias)
}

// One returns the single record reachable under a to-one alias.
func (r *Record) One(ctx context.Context, alias string) (*Record, error) {
	v, err := r.Reference(ctx, alias)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(*Record)
	if !ok && v != nil {
		return nil, &ReferenceTypeError{Alias: alias, Want: "a to-one alias", Value: v}
	}
	return rec, nil
}

// Many returns the collection reachable under a to-many alias.
func (r *Record) Many(ctx context.Context, alias string) (*Collection, error) {
	v, err := r.Reference(ctx, alias)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*Collection)
	if !ok {
		return nil, &ReferenceTypeError{Alias: alias, Want: "a to-many alias", Value: v}
	}
	return c, nil
}

// SetReference assigns the record, records or collection reachable under alias.
func (r *Record) SetReference(ctx context.Context, alias string, value any) error {
	rel, err := r.relation(alias)
	if err != nil {
		return err
	}
	return rel.SetReference(ctx, r, alias, value)
}

// String implements the fmt.Stringer interface.
func (r *Record) String() string {
	return r.table.Name() + "(" + r.id + ")"
}

func (r *Record) relation(alias string) (*Relation, error) {
	rel, ok := r.table.rm.Relation(r.table.Name(), alias)
	if !ok {
		return nil, fmt.Errorf("veloxrm: table %s has no relation alias %q", r.table.Name(), alias)
	}
	return rel, nil
}

// computeID derives the internal identifier from the record state.
func (r *Record) computeID() string {
	if !r.exists {
		return newPrefix + r.token
	}
	return joinKey(r.Identifier())
}

// siblings returns the records hydrated together with r.
func (r *Record) siblings() []*Record {
	if r.set == nil {
		return []*Record{r}
	}
	return r.set.records
}

// rekey moves rec to a new internal identifier in its table and in every
// relation touching the table.
func (rm *Manager) rekey(rec *Record, newID string) error {
	oldID := rec.id
	if newID == oldID {
		return nil
	}
	if err := rec.table.repo.Rekey(newID, oldID); err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return &IdentityError{Table: rec.table.Name(), Key: newID}
		}
		return fmt.Errorf("veloxrm: rekey %s: %w", rec, err)
	}
	rec.id = newID
	for _, rel := range rm.relationsReferencing(rec.table.Name()) {
		rel.refs.UpdateReferencedIdentifier(newID, oldID)
	}
	for _, rel := range rm.relationsOwnedBy(rec.table.Name()) {
		rel.refs.UpdateOwningIdentifier(newID, oldID)
	}
	rm.log.Debug("record rekeyed", "table", rec.table.Name(), "from", oldID, "to", newID)
	return nil
}

// joinKey formats primary key values as an internal identifier.
func joinKey(values []any) string {
	if len(values) == 1 {
		return fmt.Sprint(values[0])
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, keySeparator)
}

// normalize converts driver values to the forms records hold.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// valuesEqual compares field values, treating numbers of different
// integer widths as equal.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return x == y
		}
	}
	if x, ok := toUint64(a); ok {
		if y, ok := toUint64(b); ok {
			return x == y
		}
	}
	if x, ok := toFloat64(a); ok {
		if y, ok := toFloat64(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint64:
		return n, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	if u, ok := toUint64(v); ok {
		return float64(u), true
	}
	return 0, false
}
