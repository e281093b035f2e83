// Package refmap tracks, for one relation, which owning records point to
// which referenced records.
//
// Keys are record internal identifiers. A referenced key maps to its
// ordered owner keys (at most one for one-to-one relations) and every owner
// key maps back to the referenced key it points to. Owners linked to a
// referenced record that has no persisted identifier yet are additionally
// tracked by arena token through field mappings, which are resolved once
// the referenced record is inserted.
package refmap

import (
	"fmt"
	"slices"
	"sort"
)

// ShapeError is returned when a reference value does not match the
// cardinality of the relation.
type ShapeError struct {
	RefKey string
	Want   string
	Value  any
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("refmap: reference %q expects %s, got %T", e.RefKey, e.Want, e.Value)
}

type entry struct {
	owners   []string
	complete bool
}

// Map is the reference state of one relation. It is not safe for
// concurrent use.
type Map struct {
	toMany   bool
	refs     map[string]*entry
	owners   map[string]string // owner key -> referenced key
	mappings map[string]string // owner token -> referenced token
}

// New returns an empty Map. toMany reports whether a referenced record may
// have more than one owner.
func New(toMany bool) *Map {
	return &Map{
		toMany:   toMany,
		refs:     make(map[string]*entry),
		owners:   make(map[string]string),
		mappings: make(map[string]string),
	}
}

// ToMany reports whether the relation is one-to-many.
func (m *Map) ToMany() bool { return m.toMany }

// Len returns the number of referenced keys tracked.
func (m *Map) Len() int { return len(m.refs) }

// Has reports whether refKey has an entry, complete or not.
func (m *Map) Has(refKey string) bool {
	_, ok := m.refs[refKey]
	return ok
}

// Set replaces the owners of refKey and marks the entry complete. The value
// is a string for one-to-one relations, a []string for one-to-many ones, or
// nil to drop the entry.
func (m *Map) Set(refKey string, value any) error {
	var owners []string
	switch v := value.(type) {
	case nil:
		m.drop(refKey)
		return nil
	case string:
		if m.toMany || v == "" {
			return m.shapeError(refKey, value)
		}
		owners = []string{v}
	case []string:
		if !m.toMany {
			return m.shapeError(refKey, value)
		}
		owners = v
	default:
		return m.shapeError(refKey, value)
	}
	m.drop(refKey)
	e := m.entry(refKey)
	for _, o := range owners {
		if !slices.Contains(e.owners, o) {
			m.link(e, refKey, o)
		}
	}
	e.complete = true
	return nil
}

func (m *Map) shapeError(refKey string, value any) error {
	want := "a single owner key (string)"
	if m.toMany {
		want = "a list of owner keys ([]string)"
	}
	return &ShapeError{RefKey: refKey, Want: want, Value: value}
}

// Add links ownerKey to refKey. The owner is unlinked from any previous
// referenced key first. On one-to-one relations the previous owner of
// refKey is unlinked and returned.
func (m *Map) Add(refKey, ownerKey string) (displaced string) {
	if cur, ok := m.owners[ownerKey]; ok {
		if cur == refKey {
			return ""
		}
		m.Remove(cur, ownerKey)
	}
	e := m.entry(refKey)
	if !m.toMany && len(e.owners) > 0 {
		displaced = e.owners[0]
		delete(m.owners, displaced)
		e.owners = e.owners[:0]
	}
	m.link(e, refKey, ownerKey)
	return displaced
}

func (m *Map) link(e *entry, refKey, ownerKey string) {
	if cur, ok := m.owners[ownerKey]; ok && cur != refKey {
		m.Remove(cur, ownerKey)
	}
	e.owners = append(e.owners, ownerKey)
	m.owners[ownerKey] = refKey
}

// Remove unlinks ownerKey from refKey. The entry of refKey is kept, so a
// complete entry stays complete.
func (m *Map) Remove(refKey, ownerKey string) {
	e, ok := m.refs[refKey]
	if !ok {
		return
	}
	if i := slices.Index(e.owners, ownerKey); i >= 0 {
		e.owners = slices.Delete(e.owners, i, i+1)
	}
	if m.owners[ownerKey] == refKey {
		delete(m.owners, ownerKey)
	}
}

// OwnersOf returns a copy of the owner keys of refKey in link order.
func (m *Map) OwnersOf(refKey string) []string {
	e, ok := m.refs[refKey]
	if !ok {
		return nil
	}
	return slices.Clone(e.owners)
}

// ReferenceOf returns the referenced key ownerKey points to.
func (m *Map) ReferenceOf(ownerKey string) (string, bool) {
	k, ok := m.owners[ownerKey]
	return k, ok
}

// IsComplete reports whether the owner set of refKey is fully known.
func (m *Map) IsComplete(refKey string) bool {
	e, ok := m.refs[refKey]
	return ok && e.complete
}

// MarkComplete marks the owner set of refKey as fully known.
func (m *Map) MarkComplete(refKey string) {
	m.entry(refKey).complete = true
}

// HasFieldMapping reports whether ownerToken is mapped to an unsaved
// referenced record.
func (m *Map) HasFieldMapping(ownerToken string) bool {
	_, ok := m.mappings[ownerToken]
	return ok
}

// SetFieldMapping maps ownerToken to the token of an unsaved referenced record.
func (m *Map) SetFieldMapping(ownerToken, refToken string) {
	m.mappings[ownerToken] = refToken
}

// FieldMapping returns the referenced token ownerToken is mapped to.
func (m *Map) FieldMapping(ownerToken string) (string, bool) {
	t, ok := m.mappings[ownerToken]
	return t, ok
}

// RemoveFieldMapping removes the field mapping of ownerToken.
func (m *Map) RemoveFieldMapping(ownerToken string) {
	delete(m.mappings, ownerToken)
}

// OwnersMappedTo returns the sorted owner tokens mapped to refToken.
func (m *Map) OwnersMappedTo(refToken string) []string {
	var owners []string
	for o, r := range m.mappings {
		if r == refToken {
			owners = append(owners, o)
		}
	}
	sort.Strings(owners)
	return owners
}

// UpdateReferencedIdentifier re-keys the entry of a referenced record from
// oldKey to newKey, keeping all of its owners. Owners already linked to
// newKey are kept ahead of the migrated ones.
func (m *Map) UpdateReferencedIdentifier(newKey, oldKey string) {
	if newKey == oldKey {
		return
	}
	old, ok := m.refs[oldKey]
	if !ok {
		return
	}
	delete(m.refs, oldKey)
	e, ok := m.refs[newKey]
	if !ok {
		m.refs[newKey] = old
		e = old
	} else {
		for _, o := range old.owners {
			if !slices.Contains(e.owners, o) {
				e.owners = append(e.owners, o)
			}
		}
		e.complete = e.complete || old.complete
	}
	for _, o := range e.owners {
		m.owners[o] = newKey
	}
}

// UpdateOwningIdentifier re-keys an owner from oldKey to newKey.
func (m *Map) UpdateOwningIdentifier(newKey, oldKey string) {
	if newKey == oldKey {
		return
	}
	refKey, ok := m.owners[oldKey]
	if !ok {
		return
	}
	delete(m.owners, oldKey)
	m.owners[newKey] = refKey
	if e, ok := m.refs[refKey]; ok {
		if i := slices.Index(e.owners, oldKey); i >= 0 {
			e.owners[i] = newKey
		}
	}
}

// Forget removes key from the map, both as a referenced key and as an owner.
func (m *Map) Forget(key string) {
	m.drop(key)
	if refKey, ok := m.owners[key]; ok {
		m.Remove(refKey, key)
	}
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	c := New(m.toMany)
	for k, e := range m.refs {
		c.refs[k] = &entry{owners: slices.Clone(e.owners), complete: e.complete}
	}
	for k, v := range m.owners {
		c.owners[k] = v
	}
	for k, v := range m.mappings {
		c.mappings[k] = v
	}
	return c
}

// Clear drops all reference state.
func (m *Map) Clear() {
	clear(m.refs)
	clear(m.owners)
	clear(m.mappings)
}

func (m *Map) entry(refKey string) *entry {
	e, ok := m.refs[refKey]
	if !ok {
		e = &entry{}
		m.refs[refKey] = e
	}
	return e
}

func (m *Map) drop(refKey string) {
	e, ok := m.refs[refKey]
	if !ok {
		return
	}
	for _, o := range e.owners {
		if m.owners[o] == refKey {
			delete(m.owners, o)
		}
	}
	delete(m.refs, refKey)
}
