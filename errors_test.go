package veloxrm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloxrm"
	"github.com/syssam/veloxrm/dialect/sqlschema"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := veloxrm.NewNotFoundError("user", nil)
		assert.Equal(t, "veloxrm: user not found", err.Error())
		err = veloxrm.NewNotFoundError("user", 42)
		assert.Equal(t, "veloxrm: user not found (id=42)", err.Error())
		assert.Equal(t, "user", err.Label())
		assert.Equal(t, 42, err.ID())
	})

	t.Run("Is", func(t *testing.T) {
		err := veloxrm.NewNotFoundError("author", 1)
		assert.True(t, errors.Is(err, veloxrm.ErrNotFound))
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := veloxrm.NewNotFoundError("editor", 1)
		assert.True(t, veloxrm.IsNotFound(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, veloxrm.IsNotFound(wrapped))

		// Sentinel error
		assert.True(t, veloxrm.IsNotFound(veloxrm.ErrNotFound))

		// Non-matching error
		assert.False(t, veloxrm.IsNotFound(errors.New("other error")))
		assert.False(t, veloxrm.IsNotFound(nil))
	})
}

func TestNotLoadedError(t *testing.T) {
	err := veloxrm.NewNotLoadedError("Authors")
	assert.Equal(t, `veloxrm: reference "Authors" was not loaded`, err.Error())
	assert.True(t, veloxrm.IsNotLoaded(err))
	assert.True(t, veloxrm.IsNotLoaded(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, veloxrm.IsNotLoaded(errors.New("other")))
	assert.False(t, veloxrm.IsNotLoaded(nil))
}

func TestConstraintError(t *testing.T) {
	err := &veloxrm.ConstraintError{
		Relation:   "book.publisher_id",
		Action:     sqlschema.Restrict,
		Op:         veloxrm.OpDelete,
		Record:     "publisher(1)",
		Dependents: []string{"3", "4"},
	}
	assert.Equal(t, "veloxrm: constraint failed: OpDelete of publisher(1) blocked by RESTRICT relation book.publisher_id (dependents: 3, 4)", err.Error())
	assert.True(t, veloxrm.IsConstraintError(err))
	assert.True(t, veloxrm.IsConstraintError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, veloxrm.IsConstraintError(errors.New("other")))
	assert.False(t, veloxrm.IsConstraintError(nil))

	t.Run("database_violation", func(t *testing.T) {
		err := errors.New("UNIQUE constraint failed: author.user_id")
		assert.True(t, veloxrm.IsConstraintError(err))
	})
}

func TestTransitionError(t *testing.T) {
	err := &veloxrm.TransitionError{Record: "author(1)", From: veloxrm.OpDelete, To: veloxrm.OpSave}
	assert.Equal(t, "veloxrm: author(1) is scheduled for OpDelete and cannot be scheduled for OpSave", err.Error())
	assert.True(t, veloxrm.IsTransitionError(err))
	assert.False(t, veloxrm.IsTransitionError(nil))
}

func TestReferenceTypeError(t *testing.T) {
	err := &veloxrm.ReferenceTypeError{Alias: "User", Want: "a user record or nil", Value: "ada"}
	assert.Equal(t, `veloxrm: reference "User" expects a user record or nil, got string`, err.Error())
	assert.True(t, veloxrm.IsReferenceTypeError(err))
	assert.False(t, veloxrm.IsReferenceTypeError(errors.New("other")))
}

func TestIdentityError(t *testing.T) {
	err := &veloxrm.IdentityError{Table: "user", Key: "7"}
	assert.Equal(t, `veloxrm: identifier "7" of user is already taken`, err.Error())
	assert.True(t, veloxrm.IsIdentityError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, veloxrm.IsIdentityError(nil))
}

func TestValidationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := veloxrm.NewValidationError("author.age", veloxrm.ErrUnknownField)
		assert.Equal(t, `veloxrm: validator failed for field "author.age": veloxrm: unknown field`, err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		err := veloxrm.NewValidationError("author.age", veloxrm.ErrUnknownField)
		assert.ErrorIs(t, err, veloxrm.ErrUnknownField)
	})

	t.Run("IsValidationError", func(t *testing.T) {
		err := veloxrm.NewValidationError("name", errors.New("empty"))
		assert.True(t, veloxrm.IsValidationError(err))
		assert.True(t, veloxrm.IsValidationError(fmt.Errorf("wrapped: %w", err)))
		assert.False(t, veloxrm.IsValidationError(errors.New("other")))
		assert.False(t, veloxrm.IsValidationError(nil))
	})
}

func TestRollbackError(t *testing.T) {
	inner := errors.New("connection lost")
	err := &veloxrm.RollbackError{Err: inner}
	assert.Equal(t, "veloxrm: rollback failed: connection lost", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestQueryError(t *testing.T) {
	inner := errors.New("no such table")
	err := &veloxrm.QueryError{Table: "author", Op: "find", Err: inner}
	assert.Equal(t, "veloxrm: querying author (find): no such table", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.True(t, veloxrm.IsQueryError(err))

	err = &veloxrm.QueryError{Table: "author", Err: inner}
	assert.Equal(t, "veloxrm: querying author: no such table", err.Error())
}

func TestMutationError(t *testing.T) {
	inner := errors.New("disk full")
	err := &veloxrm.MutationError{Table: "editor", Op: veloxrm.OpCreate, Err: inner}
	assert.Equal(t, "veloxrm: OpCreate editor: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.True(t, veloxrm.IsMutationError(err))
	assert.False(t, veloxrm.IsMutationError(inner))
}

func TestPrivacyError(t *testing.T) {
	deny := errors.New("deny rule")
	err := &veloxrm.MutationError{
		Table: "book",
		Op:    veloxrm.OpDelete,
		Err:   &veloxrm.PrivacyError{Table: "book", Op: veloxrm.OpDelete, Err: deny},
	}
	require.True(t, veloxrm.IsPrivacyError(err))
	assert.ErrorIs(t, err, deny)
	assert.Contains(t, err.Error(), "privacy denied OpDelete on book: deny rule")
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{veloxrm.ErrNotFound, veloxrm.ErrReadOnly, veloxrm.ErrUnknownField}
	for i, a := range sentinels {
		assert.Contains(t, a.Error(), "veloxrm:")
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}

func BenchmarkErrors(b *testing.B) {
	b.Run("IsNotFound", func(b *testing.B) {
		err := fmt.Errorf("wrapped: %w", veloxrm.NewNotFoundError("user", 1))
		for b.Loop() {
			_ = veloxrm.IsNotFound(err)
		}
	})
	b.Run("IsConstraintError", func(b *testing.B) {
		err := fmt.Errorf("wrapped: %w", &veloxrm.ConstraintError{Relation: "r"})
		for b.Loop() {
			_ = veloxrm.IsConstraintError(err)
		}
	})
}
