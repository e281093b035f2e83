package veloxrm

// Collection is the live set of owners of a referenced record under a
// to-many alias. It reflects in-memory changes without a query.
type Collection struct {
	rel *Relation
	ref *Record
}

// Record returns the referenced record the collection belongs to.
func (c *Collection) Record() *Record { return c.ref }

// All returns the owners in load and link order.
func (c *Collection) All() []*Record {
	return c.rel.loadedOwners(c.ref)
}

// Len returns the number of owners.
func (c *Collection) Len() int {
	return len(c.rel.refs.OwnersOf(c.ref.id))
}

// Has reports whether rec is an owner.
func (c *Collection) Has(rec *Record) bool {
	key, ok := c.rel.refs.ReferenceOf(rec.id)
	return ok && key == c.ref.id
}

// Add links the given records to the referenced record.
func (c *Collection) Add(recs ...*Record) error {
	for _, rec := range recs {
		if rec == nil || rec.table.Name() != c.rel.OwningTable {
			return &ReferenceTypeError{Alias: c.rel.OwningAlias, Want: "a " + c.rel.OwningTable + " record", Value: rec}
		}
	}
	for _, rec := range recs {
		c.rel.link(rec, c.ref)
	}
	return nil
}

// Remove unlinks the given owners and nulls their foreign key. Records that
// are not owners are ignored.
func (c *Collection) Remove(recs ...*Record) {
	for _, rec := range recs {
		if c.Has(rec) {
			c.rel.unlink(rec)
			rec.setValue(c.rel.OwningField, nil)
		}
	}
}
