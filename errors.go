package veloxrm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/veloxrm/dialect/sql/sqlgraph"
	"github.com/syssam/veloxrm/dialect/sqlschema"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("veloxrm: record not found")

	// ErrReadOnly is returned when a record of a view is scheduled for a write.
	ErrReadOnly = errors.New("veloxrm: table is read-only")

	// ErrUnknownField is returned when a field is not part of the table.
	ErrUnknownField = errors.New("veloxrm: unknown field")

	// ErrDetached is returned when a record no longer tracked by the session,
	// after its delete was committed or the session was cleared, is
	// scheduled.
	ErrDetached = errors.New("veloxrm: record is detached")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("veloxrm: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("veloxrm: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the table name.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError with the ID that was searched for.
func NewNotFoundError(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotLoadedError is returned when a reference is read without a query
// and its target is not in memory.
type NotLoadedError struct {
	alias string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("veloxrm: reference %q was not loaded", e.alias)
}

// NewNotLoadedError returns a new NotLoadedError for the given alias.
func NewNotLoadedError(alias string) *NotLoadedError {
	return &NotLoadedError{alias: alias}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ConstraintError is returned when a RESTRICT or NO ACTION relation
// blocks a delete, or a key change, of a referenced record.
type ConstraintError struct {
	Relation   string
	Action     sqlschema.CascadeAction
	Op         Op
	Record     string   // table(internal id) of the referenced record
	Dependents []string // internal ids of the blocking owners
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("veloxrm: constraint failed: %s of %s blocked by %s relation %s (dependents: %s)",
		e.Op, e.Record, e.Action, e.Relation, strings.Join(e.Dependents, ", "))
}

// IsConstraintError returns true if the error is a ConstraintError, or a
// constraint violation reported by the database.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e) || sqlgraph.IsConstraintError(err)
}

// TransitionError is returned when a schedule change is not allowed, such
// as saving a record already scheduled for delete.
type TransitionError struct {
	Record string
	From   Op
	To     Op
}

// Error returns the error string.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("veloxrm: %s is scheduled for %s and cannot be scheduled for %s", e.Record, e.From, e.To)
}

// IsTransitionError returns true if the error is a TransitionError.
func IsTransitionError(err error) bool {
	if err == nil {
		return false
	}
	var e *TransitionError
	return errors.As(err, &e)
}

// ReferenceTypeError is returned when a reference value does not match
// the cardinality or the table of a relation side.
type ReferenceTypeError struct {
	Alias string
	Want  string
	Value any
}

// Error returns the error string.
func (e *ReferenceTypeError) Error() string {
	return fmt.Sprintf("veloxrm: reference %q expects %s, got %T", e.Alias, e.Want, e.Value)
}

// IsReferenceTypeError returns true if the error is a ReferenceTypeError.
func IsReferenceTypeError(err error) bool {
	if err == nil {
		return false
	}
	var e *ReferenceTypeError
	return errors.As(err, &e)
}

// IdentityError is returned when a record would take an identifier that
// another record of the same table already holds.
type IdentityError struct {
	Table string
	Key   string
}

// Error returns the error string.
func (e *IdentityError) Error() string {
	return fmt.Sprintf("veloxrm: identifier %q of %s is already taken", e.Key, e.Table)
}

// IsIdentityError returns true if the error is an IdentityError.
func IsIdentityError(err error) bool {
	if err == nil {
		return false
	}
	var e *IdentityError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for field values.
type ValidationError struct {
	Name string // Field or table name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("veloxrm: validator failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("veloxrm: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// QueryError wraps a lazy-load query error with additional context.
type QueryError struct {
	Table string // Table being queried
	Op    string // Operation (e.g., "find", "select", "load")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("veloxrm: querying %s (%s): %v", e.Table, e.Op, e.Err)
	}
	return fmt.Sprintf("veloxrm: querying %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError is returned when a commit fails. It wraps the error of the
// failing operation.
type MutationError struct {
	Table string // Table of the failing record
	Op    Op     // Operation of the failing record
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("veloxrm: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// PrivacyError represents a privacy policy violation.
type PrivacyError struct {
	Table string // Table of the record
	Op    Op     // Operation denied
	Err   error  // Decision returned by the policy
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	return fmt.Sprintf("veloxrm: privacy denied %s on %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the policy decision.
func (e *PrivacyError) Unwrap() error {
	return e.Err
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
