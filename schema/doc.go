// Package schema describes the tables and foreign key relations the record
// manager works with.
//
// A Schema is built from Go values with New or from YAML with Load. Both
// fill relation defaults and validate the result:
//
//	s, err := schema.New(
//	    []*schema.Table{
//	        {Name: "editor", PrimaryKey: []string{"id"}, AutoIncrement: true, Fields: []*schema.Field{{Name: "id"}, {Name: "name"}}},
//	        {Name: "author", PrimaryKey: []string{"id"}, AutoIncrement: true, Fields: []*schema.Field{{Name: "id"}, {Name: "editor_id", Nullable: true}}},
//	    },
//	    []*schema.Relation{
//	        {OwningTable: "author", OwningField: "editor_id", ReferencedTable: "editor", OnDelete: sqlschema.SetNull},
//	    },
//	)
//
// Unless given, the referenced alias is the camelized foreign key without
// its "_id" suffix (author.Editor) and the owning alias the camelized owning
// table, pluralized for one-to-many relations (editor.Authors).
package schema
