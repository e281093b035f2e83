package veloxrm

import (
	"context"
	"fmt"
	"slices"
)

// Op represents the operation of a scheduled or committed record.
type Op uint

// Operations. OpSave is what the unit of work schedules for a record to be
// written; the commit resolves it to OpCreate or OpUpdate.
const (
	OpCreate Op = 1 << iota // insert of a new record
	OpUpdate                // update of an existing record
	OpDelete                // delete of an existing record

	OpSave = OpCreate | OpUpdate
)

// Is reports whether o shares an operation with op.
func (o Op) Is(op Op) bool { return o&op != 0 }

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "OpCreate"
	case OpUpdate:
		return "OpUpdate"
	case OpDelete:
		return "OpDelete"
	case OpSave:
		return "OpSave"
	default:
		return fmt.Sprintf("Op(%d)", uint(o))
	}
}

// Mutation describes one statement the commit is about to execute. It is
// passed to the Policy of the Manager.
type Mutation interface {
	// Op returns OpCreate, OpUpdate or OpDelete.
	Op() Op
	// Table returns the table name.
	Table() string
	// Fields returns the fields written by the statement.
	Fields() []string
	// Field returns the value of a field of the record.
	Field(name string) (any, bool)
	// Record returns the record being written.
	Record() *Record
}

// Policy decides whether a mutation may be executed. A nil error allows it.
type Policy interface {
	EvalMutation(context.Context, Mutation) error
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func(context.Context, Mutation) error

// EvalMutation returns f(ctx, m).
func (f PolicyFunc) EvalMutation(ctx context.Context, m Mutation) error {
	return f(ctx, m)
}

type mutation struct {
	op     Op
	rec    *Record
	fields []string
}

func (m *mutation) Op() Op           { return m.op }
func (m *mutation) Table() string    { return m.rec.table.Name() }
func (m *mutation) Fields() []string { return slices.Clone(m.fields) }
func (m *mutation) Record() *Record  { return m.rec }

func (m *mutation) Field(name string) (any, bool) {
	if !m.rec.table.def.HasField(name) {
		return nil, false
	}
	return m.rec.Get(name), true
}
