// Package sqlschema holds the SQL referential actions a relation declares
// for the delete and update of its referenced row.
//
//	sqlschema.Cascade  - delete dependents, or follow the new key
//	sqlschema.SetNull  - null the dependents' foreign key
//	sqlschema.Restrict - reject while dependents exist
//	sqlschema.NoAction - same as Restrict (the database default)
package sqlschema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// CascadeAction defines cascade behavior for foreign key constraints.
type CascadeAction string

const (
	Cascade  CascadeAction = "CASCADE"
	SetNull  CascadeAction = "SET NULL"
	Restrict CascadeAction = "RESTRICT"
	NoAction CascadeAction = "NO ACTION"
)

// ParseCascadeAction parses an action name. Names are case-insensitive and
// accept underscores in place of spaces ("set_null"). An empty name is NoAction.
func ParseCascadeAction(s string) (CascadeAction, error) {
	name := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))
	switch a := CascadeAction(name); a {
	case "":
		return NoAction, nil
	case Cascade, SetNull, Restrict, NoAction:
		return a, nil
	default:
		return "", fmt.Errorf("sqlschema: unknown cascade action %q", s)
	}
}

// Blocks reports whether the action rejects changes while dependents exist.
func (a CascadeAction) Blocks() bool {
	return a == "" || a == Restrict || a == NoAction
}

// String returns the SQL spelling of the action.
func (a CascadeAction) String() string {
	if a == "" {
		return string(NoAction)
	}
	return string(a)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *CascadeAction) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseCascadeAction(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*a = v
	return nil
}
