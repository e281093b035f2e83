// Package sqlgraph classifies driver errors raised while the unit of work
// executes its statements.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Violation is the kind of database constraint an error reports.
type Violation uint8

// Constraint violation kinds.
const (
	NoViolation Violation = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
)

// String returns the name of the violation kind.
func (v Violation) String() string {
	switch v {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign key"
	case CheckViolation:
		return "check"
	default:
		return "none"
	}
}

// class describes how each driver reports one violation kind.
type class struct {
	kind     Violation
	sqlState string   // PostgreSQL SQLSTATE (class 23)
	mysql    []uint16 // MySQL error numbers
	sqlite   []int    // SQLite extended result codes
	messages []string // fallback substrings
}

var classes = []class{
	{
		kind:     UniqueViolation,
		sqlState: "23505",
		mysql:    []uint16{1062},
		sqlite:   []int{2067, 1555}, // SQLITE_CONSTRAINT_UNIQUE, SQLITE_CONSTRAINT_PRIMARYKEY
		messages: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:     ForeignKeyViolation,
		sqlState: "23503",
		mysql:    []uint16{1451, 1452},
		sqlite:   []int{787}, // SQLITE_CONSTRAINT_FOREIGNKEY
		messages: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:     CheckViolation,
		sqlState: "23514",
		mysql:    []uint16{3819},
		sqlite:   []int{275}, // SQLITE_CONSTRAINT_CHECK
		messages: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

// sqlStater is implemented by pgx and other drivers exposing SQLSTATE codes.
type sqlStater interface {
	SQLState() string
}

// coder is implemented by modernc.org/sqlite errors.
type coder interface {
	Code() int
}

// Classify reports which constraint, if any, the error chain violated.
func Classify(err error) Violation {
	if err == nil {
		return NoViolation
	}
	var (
		pqErr    *pq.Error
		myErr    *mysql.MySQLError
		state    string
		number   uint16
		code     int
		hasCode  bool
		hasState bool
	)
	switch {
	case errors.As(err, &pqErr):
		state, hasState = string(pqErr.Code), true
	case errors.As(err, &myErr):
		number = myErr.Number
	default:
		if e, ok := asError[sqlStater](err); ok {
			state, hasState = e.SQLState(), true
		}
		if e, ok := asError[coder](err); ok {
			code, hasCode = e.Code(), true
		}
	}
	for _, c := range classes {
		switch {
		case hasState && state == c.sqlState:
			return c.kind
		case number != 0 && contains(c.mysql, number):
			return c.kind
		case hasCode && contains(c.sqlite, code):
			return c.kind
		}
	}
	msg := err.Error()
	for _, c := range classes {
		for _, m := range c.messages {
			if strings.Contains(msg, m) {
				return c.kind
			}
		}
	}
	return NoViolation
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return Classify(err) != NoViolation
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	return Classify(err) == UniqueViolation
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return Classify(err) == ForeignKeyViolation
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return Classify(err) == CheckViolation
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func contains[T comparable](s []T, v T) bool {
	for i := range s {
		if s[i] == v {
			return true
		}
	}
	return false
}
