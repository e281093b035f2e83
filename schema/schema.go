package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/syssam/veloxrm/dialect/sqlschema"
)

// Cardinality is the number of owners a referenced record may have.
type Cardinality uint8

const (
	// OneToMany relations allow any number of owners per referenced record.
	OneToMany Cardinality = iota
	// OneToOne relations allow at most one owner per referenced record.
	OneToOne
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	if c == OneToOne {
		return "one_to_one"
	}
	return "one_to_many"
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Cardinality) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "one_to_one", "1:1":
		*c = OneToOne
	case "one_to_many", "1:n", "":
		*c = OneToMany
	default:
		return fmt.Errorf("schema: line %d: unknown cardinality %q", n.Line, s)
	}
	return nil
}

// Field describes one persisted column of a table.
type Field struct {
	Name     string `yaml:"name"`
	Nullable bool   `yaml:"nullable,omitempty"`
	// Default is the value new records start with.
	Default any `yaml:"default,omitempty"`
}

// UnmarshalYAML accepts a bare field name as a shorthand.
func (f *Field) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		f.Name = n.Value
		return nil
	}
	type plain Field
	return n.Decode((*plain)(f))
}

// Table describes a table or a read-only view.
type Table struct {
	Name       string   `yaml:"name"`
	Fields     []*Field `yaml:"fields"`
	PrimaryKey []string `yaml:"primary_key"`
	// AutoIncrement reports that the database assigns the single-field
	// primary key on insert.
	AutoIncrement bool `yaml:"auto_increment,omitempty"`
	// View marks read-only tables. Records of views are never written.
	View bool `yaml:"view,omitempty"`

	fields map[string]*Field
}

// Field returns the named field.
func (t *Table) Field(name string) (*Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// HasField reports whether the table has the named field.
func (t *Table) HasField(name string) bool {
	_, ok := t.fields[name]
	return ok
}

// FieldNames returns the field names in declaration order.
func (t *Table) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// IsPrimaryKey reports whether the field is part of the primary key.
func (t *Table) IsPrimaryKey(field string) bool {
	return slices.Contains(t.PrimaryKey, field)
}

// Relation is the metadata of one foreign key. The owning table holds the
// foreign key field, the referenced table is its target.
type Relation struct {
	// Name identifies the relation. Defaults to "<owning_table>.<owning_field>".
	Name         string `yaml:"name,omitempty"`
	OwningTable  string `yaml:"owning_table"`
	OwningField  string `yaml:"owning_field"`
	// OwningAlias is the name a referenced record reaches its owners by.
	// Defaults to the camelized owning table, pluralized for OneToMany.
	OwningAlias     string `yaml:"owning_alias,omitempty"`
	ReferencedTable string `yaml:"referenced_table"`
	ReferencedField string `yaml:"referenced_field,omitempty"`
	// ReferencedAlias is the name an owning record reaches its referenced
	// record by. Defaults to the camelized owning field without its "_id" suffix.
	ReferencedAlias string                  `yaml:"referenced_alias,omitempty"`
	Cardinality     Cardinality             `yaml:"cardinality,omitempty"`
	OnDelete        sqlschema.CascadeAction `yaml:"on_delete,omitempty"`
	OnUpdate        sqlschema.CascadeAction `yaml:"on_update,omitempty"`
	// OrderBy is a raw ORDER BY expression applied when owners are loaded.
	OrderBy string `yaml:"order_by,omitempty"`
}

// IsOwningSide reports whether alias names the owning side of the relation,
// that is, the records holding the foreign key.
func (r *Relation) IsOwningSide(alias string) bool {
	return alias == r.OwningAlias
}

// IsToMany reports whether traversing alias yields more than one record.
func (r *Relation) IsToMany(alias string) bool {
	return r.IsOwningSide(alias) && r.Cardinality == OneToMany
}

// IsSelfReference reports whether both sides are the same table.
func (r *Relation) IsSelfReference() bool {
	return r.OwningTable == r.ReferencedTable
}

// String implements the fmt.Stringer interface.
func (r *Relation) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", r.OwningTable, r.OwningField, r.ReferencedTable, r.ReferencedField)
}

// Schema is the relation metadata of a set of tables. It is immutable
// once created with New.
type Schema struct {
	Tables    []*Table    `yaml:"tables"`
	Relations []*Relation `yaml:"relations"`

	tables map[string]*Table
	owned  map[string][]*Relation // owning table -> relations
	refs   map[string][]*Relation // referenced table -> relations
	alias  map[string]map[string]*Relation
}

// New fills relation defaults, validates and indexes the given tables and
// relations. Validation errors are joined into the returned error.
func New(tables []*Table, relations []*Relation) (*Schema, error) {
	s := &Schema{Tables: tables, Relations: relations}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) init() error {
	s.tables = make(map[string]*Table, len(s.Tables))
	for _, t := range s.Tables {
		t.fields = make(map[string]*Field, len(t.Fields))
		for _, f := range t.Fields {
			t.fields[f.Name] = f
		}
		if _, ok := s.tables[t.Name]; !ok {
			s.tables[t.Name] = t
		}
	}
	for _, r := range s.Relations {
		s.defaults(r)
	}
	if res := s.Validate(); res.HasErrors() {
		errs := make([]error, len(res.Errors))
		for i, e := range res.Errors {
			errs[i] = e
		}
		return fmt.Errorf("schema: invalid: %w", errors.Join(errs...))
	}
	s.owned = make(map[string][]*Relation)
	s.refs = make(map[string][]*Relation)
	s.alias = make(map[string]map[string]*Relation)
	for _, r := range s.Relations {
		s.owned[r.OwningTable] = append(s.owned[r.OwningTable], r)
		s.refs[r.ReferencedTable] = append(s.refs[r.ReferencedTable], r)
		s.addAlias(r.OwningTable, r.ReferencedAlias, r)
		s.addAlias(r.ReferencedTable, r.OwningAlias, r)
	}
	return nil
}

func (s *Schema) defaults(r *Relation) {
	if r.ReferencedField == "" {
		if t, ok := s.tables[r.ReferencedTable]; ok && len(t.PrimaryKey) == 1 {
			r.ReferencedField = t.PrimaryKey[0]
		}
	}
	if r.Name == "" {
		r.Name = r.OwningTable + "." + r.OwningField
	}
	if r.ReferencedAlias == "" {
		r.ReferencedAlias = inflect.Camelize(strings.TrimSuffix(r.OwningField, "_id"))
	}
	if r.OwningAlias == "" {
		alias := inflect.Camelize(r.OwningTable)
		if r.Cardinality == OneToMany {
			alias = inflect.Pluralize(alias)
		}
		r.OwningAlias = alias
	}
	if r.OnDelete == "" {
		r.OnDelete = sqlschema.NoAction
	}
	if r.OnUpdate == "" {
		r.OnUpdate = sqlschema.NoAction
	}
}

func (s *Schema) addAlias(table, alias string, r *Relation) {
	m, ok := s.alias[table]
	if !ok {
		m = make(map[string]*Relation)
		s.alias[table] = m
	}
	m[alias] = r
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Relation returns the relation reachable from table under alias.
func (s *Schema) Relation(table, alias string) (*Relation, bool) {
	r, ok := s.alias[table][alias]
	return r, ok
}

// Aliases returns the relation aliases reachable from table, sorted.
func (s *Schema) Aliases(table string) []string {
	aliases := make([]string, 0, len(s.alias[table]))
	for a := range s.alias[table] {
		aliases = append(aliases, a)
	}
	slices.Sort(aliases)
	return aliases
}

// OwnedBy returns the relations whose foreign key lives in table.
func (s *Schema) OwnedBy(table string) []*Relation {
	return s.owned[table]
}

// Referencing returns the relations whose foreign key points at table.
func (s *Schema) Referencing(table string) []*Relation {
	return s.refs[table]
}

// RelationByField returns the relation whose foreign key is table.field.
func (s *Schema) RelationByField(table, field string) (*Relation, bool) {
	for _, r := range s.owned[table] {
		if r.OwningField == field {
			return r, true
		}
	}
	return nil, false
}
