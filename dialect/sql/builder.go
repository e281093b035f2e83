package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/veloxrm/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder for the sql dsl.
// It writes dialect-aware identifiers and placeholders.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect string
}

// Quote quotes the given identifier with the characters based
// on the configured dialect. Dotted identifiers are quoted per part.
func (b *Builder) Quote(ident string) string {
	quote := `"`
	if b.dialect == dialect.MySQL {
		quote = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = quote + strings.ReplaceAll(p, quote, quote+quote) + quote
	}
	return strings.Join(parts, ".")
}

// Ident appends the quoted identifier to the builder.
func (b *Builder) Ident(s string) *Builder {
	b.sb.WriteString(b.Quote(s))
	return b
}

// IdentComma appends the quoted identifiers separated by commas.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// WriteString appends raw SQL to the builder.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg appends an input argument to the builder and writes its placeholder.
func (b *Builder) Arg(a any) *Builder {
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteString("?")
	}
	return b
}

// Args appends a list of arguments separated by commas.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// DialectBuilder prefixes all root builders with the dialect name.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Quote quotes an identifier for the builder's dialect.
func (d *DialectBuilder) Quote(ident string) string {
	b := Builder{dialect: d.dialect}
	return b.Quote(ident)
}

// Insert creates an InsertBuilder for the configured dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

// Select creates a Selector for the configured dialect.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columns}
}

// Predicate is a where predicate. It is rendered lazily so that
// placeholders are numbered relative to the enclosing statement.
type Predicate struct {
	fns []func(*Builder)
}

// P creates a new predicate from a render function.
func P(fn func(*Builder)) *Predicate {
	return &Predicate{fns: []func(*Builder){fn}}
}

func (p *Predicate) render(b *Builder) {
	for i, fn := range p.fns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fn(b)
	}
}

// EQ returns a "=" predicate. A nil value renders as IS NULL.
func EQ(col string, v any) *Predicate {
	if v == nil {
		return IsNull(col)
	}
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" = ").Arg(v)
	})
}

// IsNull returns the `IS NULL` predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// In returns the `IN` predicate.
func In(col string, args ...any) *Predicate {
	if len(args) == 1 {
		return EQ(col, args[0])
	}
	return P(func(b *Builder) {
		if len(args) == 0 {
			// Empty IN matches nothing.
			b.WriteString("FALSE")
			return
		}
		b.Ident(col).WriteString(" IN (").Args(args...).WriteString(")")
	})
}

// And combines the given predicates with AND.
func And(preds ...*Predicate) *Predicate {
	p := &Predicate{}
	for _, pred := range preds {
		p.fns = append(p.fns, pred.fns...)
	}
	return p
}

// InsertBuilder is a builder for `INSERT INTO` statement.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    []any
	returning []string
}

// Columns sets the columns of the insert statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values appends a value tuple for the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values...)
	return i
}

// Default sets the default values clause based on the dialect type.
func (i *InsertBuilder) Default() *InsertBuilder {
	i.columns, i.values = nil, nil
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// Supported by PostgreSQL and SQLite.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ").Ident(i.table)
	switch {
	case len(i.columns) > 0:
		b.WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES (").Args(i.values...).WriteString(")")
	case i.dialect == dialect.MySQL:
		b.WriteString(" VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
	if len(i.returning) > 0 && i.dialect != dialect.MySQL {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b.Query()
}

// UpdateBuilder is a builder for `UPDATE` statement.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Set sets a column to a given value. A nil value sets the column to NULL.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Empty reports whether this builder does not contain update changes.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0
}

// Where adds a where predicate for update statement.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if u.where != nil {
		p = And(u.where, p)
	}
	u.where = p
	return u
}

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ")
		if u.values[i] == nil {
			b.WriteString("NULL")
		} else {
			b.Arg(u.values[i])
		}
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.render(b)
	}
	return b.Query()
}

// DeleteBuilder is a builder for `DELETE` statement.
type DeleteBuilder struct {
	dialect string
	table   string
	where   *Predicate
}

// Where appends a where predicate to the `DELETE FROM` statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if d.where != nil {
		p = And(d.where, p)
	}
	d.where = p
	return d
}

// Query returns query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.render(b)
	}
	return b.Query()
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	dialect string
	columns []string
	table   string
	where   *Predicate
	order   []string
	limit   *int
}

// From sets the source table of the `SELECT` statement.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	if s.where != nil {
		p = And(s.where, p)
	}
	s.where = p
	return s
}

// OrderBy appends the `ORDER BY` columns. Columns are quoted.
func (s *Selector) OrderBy(columns ...string) *Selector {
	for _, c := range columns {
		s.order = append(s.order, s.quote(c))
	}
	return s
}

// OrderExpr appends a raw `ORDER BY` expression, such as "name DESC".
func (s *Selector) OrderExpr(expr string) *Selector {
	if expr = strings.TrimSpace(expr); expr != "" {
		s.order = append(s.order, expr)
	}
	return s
}

// Limit adds the `LIMIT` clause to the `SELECT` statement.
func (s *Selector) Limit(limit int) *Selector {
	s.limit = &limit
	return s
}

func (s *Selector) quote(ident string) string {
	b := Builder{dialect: s.dialect}
	return b.Quote(ident)
}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.IdentComma(s.columns...)
	}
	b.WriteString(" FROM ").Ident(s.table)
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.render(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ").WriteString(strings.Join(s.order, ", "))
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ").WriteString(strconv.Itoa(*s.limit))
	}
	return b.Query()
}
