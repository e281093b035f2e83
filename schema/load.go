package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a YAML schema document and validates it. Unknown keys are
// rejected.
//
//	tables:
//	  - name: user
//	    primary_key: [id]
//	    auto_increment: true
//	    fields: [id, username]
//	  - name: author
//	    primary_key: [id]
//	    auto_increment: true
//	    fields:
//	      - id
//	      - name: user_id
//	        nullable: true
//	relations:
//	  - owning_table: author
//	    owning_field: user_id
//	    referenced_table: user
//	    cardinality: one_to_one
//	    on_delete: cascade
func Load(data []byte) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses the YAML schema at path.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Load(data)
}
