package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

type sqliteError struct {
	code int
	msg  string
}

func (e *sqliteError) Error() string { return e.msg }
func (e *sqliteError) Code() int     { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Violation
	}{
		{"nil", nil, NoViolation},
		{"plain", errors.New("connection reset"), NoViolation},
		{"pq_fk", &pq.Error{Code: "23503", Message: "update or delete violates foreign key constraint"}, ForeignKeyViolation},
		{"pq_unique_wrapped", fmt.Errorf("insert author: %w", &pq.Error{Code: "23505"}), UniqueViolation},
		{"pq_check", &pq.Error{Code: "23514"}, CheckViolation},
		{"pq_other", &pq.Error{Code: "42P01", Message: "relation does not exist"}, NoViolation},
		{"mysql_parent", &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"}, ForeignKeyViolation},
		{"mysql_child", fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1452}), ForeignKeyViolation},
		{"mysql_dup", &mysql.MySQLError{Number: 1062}, UniqueViolation},
		{"mysql_check", &mysql.MySQLError{Number: 3819}, CheckViolation},
		{"sqlite_code", &sqliteError{code: 787, msg: "constraint failed"}, ForeignKeyViolation},
		{"sqlite_pk", &sqliteError{code: 1555, msg: "constraint failed"}, UniqueViolation},
		{"sqlite_message", errors.New("FOREIGN KEY constraint failed (787)"), ForeignKeyViolation},
		{"message_check", errors.New(`new row violates check constraint "age_check"`), CheckViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.want != NoViolation, IsConstraintError(tt.err))
		})
	}
}

func TestIsConstraintHelpers(t *testing.T) {
	fk := &pq.Error{Code: "23503"}
	assert.True(t, IsForeignKeyConstraintError(fk))
	assert.False(t, IsUniqueConstraintError(fk))
	assert.False(t, IsCheckConstraintError(fk))

	dup := &mysql.MySQLError{Number: 1062}
	assert.True(t, IsUniqueConstraintError(dup))
	assert.False(t, IsForeignKeyConstraintError(dup))

	assert.Equal(t, "foreign key", ForeignKeyViolation.String())
	assert.Equal(t, "none", NoViolation.String())
}
