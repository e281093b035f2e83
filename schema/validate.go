package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/veloxrm/dialect/sqlschema"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table    string
	Field    string
	Relation string
	Message  string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	switch {
	case e.Relation != "":
		sb.WriteString("relation " + e.Relation)
	case e.Field != "":
		sb.WriteString(e.Table + "." + e.Field)
	default:
		sb.WriteString(e.Table)
	}
	sb.WriteString(": " + e.Message)
	return sb.String()
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - " + e.Error() + "\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - " + w.Error() + "\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(e ValidationError, format string, args ...any) {
	e.Message = fmt.Sprintf(format, args...)
	r.Errors = append(r.Errors, &e)
}

func (r *ValidationResult) warnf(e ValidationError, format string, args ...any) {
	e.Message = fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, &e)
}

// ValidateTable validates a single table definition.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}
	at := ValidationError{Table: t.Name}
	if t.Name == "" {
		result.errorf(at, "table has no name")
	}
	if len(t.Fields) == 0 {
		result.errorf(at, "table has no fields")
	}
	names := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			result.errorf(at, "field has no name")
			continue
		}
		if names[f.Name] {
			result.errorf(ValidationError{Table: t.Name, Field: f.Name}, "duplicate field name")
		}
		names[f.Name] = true
	}
	if len(t.PrimaryKey) == 0 {
		result.errorf(at, "table has no primary key")
	}
	for _, pk := range t.PrimaryKey {
		if !names[pk] {
			result.errorf(at, "primary key references non-existent field %q", pk)
		}
		if f, ok := t.fields[pk]; ok && f.Nullable {
			result.errorf(ValidationError{Table: t.Name, Field: pk}, "primary key field cannot be nullable")
		}
	}
	if t.AutoIncrement && len(t.PrimaryKey) != 1 {
		result.errorf(at, "auto increment requires a single-field primary key")
	}
	return result
}

// Validate validates all tables and relations of the schema.
func (s *Schema) Validate() *ValidationResult {
	result := &ValidationResult{}
	seen := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		if seen[t.Name] {
			result.errorf(ValidationError{Table: t.Name}, "duplicate table name")
		}
		seen[t.Name] = true
		tr := ValidateTable(t)
		result.Errors = append(result.Errors, tr.Errors...)
		result.Warnings = append(result.Warnings, tr.Warnings...)
	}
	names := make(map[string]bool, len(s.Relations))
	fks := make(map[string]bool, len(s.Relations))
	aliases := make(map[string]string)
	for _, r := range s.Relations {
		at := ValidationError{Relation: r.Name}
		if names[r.Name] {
			result.errorf(at, "duplicate relation name")
		}
		names[r.Name] = true
		owning, ok := s.tables[r.OwningTable]
		if !ok {
			result.errorf(at, "owning table %q does not exist", r.OwningTable)
			continue
		}
		referenced, ok := s.tables[r.ReferencedTable]
		if !ok {
			result.errorf(at, "referenced table %q does not exist", r.ReferencedTable)
			continue
		}
		fk, ok := owning.Field(r.OwningField)
		if !ok {
			result.errorf(at, "owning field %q does not exist", r.OwningField)
			continue
		}
		if owning.IsPrimaryKey(r.OwningField) {
			result.errorf(at, "owning field %q cannot be part of the primary key", r.OwningField)
		}
		if fks[r.OwningTable+"."+r.OwningField] {
			result.errorf(at, "owning field %q is used by another relation", r.OwningField)
		}
		fks[r.OwningTable+"."+r.OwningField] = true
		if len(referenced.PrimaryKey) != 1 || referenced.PrimaryKey[0] != r.ReferencedField {
			result.errorf(at, "referenced field %q must be the single-field primary key of %q", r.ReferencedField, r.ReferencedTable)
		}
		if r.OwningAlias == r.ReferencedAlias {
			result.errorf(at, "owning alias and referenced alias are both %q", r.OwningAlias)
		}
		for _, a := range []struct{ table *Table; alias string }{{owning, r.ReferencedAlias}, {referenced, r.OwningAlias}} {
			key := a.table.Name + "." + a.alias
			if other, ok := aliases[key]; ok && other != r.Name {
				result.errorf(at, "alias %q of table %q is already used by relation %s", a.alias, a.table.Name, other)
			}
			aliases[key] = r.Name
			if a.table.HasField(a.alias) {
				result.errorf(at, "alias %q shadows a field of table %q", a.alias, a.table.Name)
			}
		}
		for _, action := range []sqlschema.CascadeAction{r.OnDelete, r.OnUpdate} {
			if action == sqlschema.SetNull && !fk.Nullable {
				result.errorf(at, "SET NULL requires nullable field %q", r.OwningField)
			}
		}
		if r.OrderBy != "" && r.Cardinality == OneToOne {
			result.warnf(at, "order by is ignored on one-to-one relations")
		}
		if referenced.View && !owning.View {
			result.warnf(at, "foreign key of table %q references view %q", r.OwningTable, r.ReferencedTable)
		}
	}
	return result
}
