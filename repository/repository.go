// Package repository provides the identity map of a table: at most one
// in-memory instance per internal identifier.
package repository

import (
	"fmt"
	"sort"
)

// DuplicateError is returned when a key is already bound to another item.
type DuplicateError struct {
	Name string
	Key  string
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("repository: %s already holds key %q", e.Name, e.Key)
}

type slot[T comparable] struct {
	item T
	seq  uint64
}

// Repository maps internal identifiers to items. Iteration follows
// insertion order. It is not safe for concurrent use.
type Repository[T comparable] struct {
	name  string
	items map[string]slot[T]
	seq   uint64
}

// New returns an empty Repository. The name is used in error messages.
func New[T comparable](name string) *Repository[T] {
	return &Repository[T]{name: name, items: make(map[string]slot[T])}
}

// Name returns the repository name.
func (r *Repository[T]) Name() string { return r.name }

// Len returns the number of items.
func (r *Repository[T]) Len() int { return len(r.items) }

// Add registers item under key. Adding the same item twice is a no-op.
func (r *Repository[T]) Add(key string, item T) error {
	if s, ok := r.items[key]; ok {
		if s.item == item {
			return nil
		}
		return &DuplicateError{Name: r.name, Key: key}
	}
	r.seq++
	r.items[key] = slot[T]{item: item, seq: r.seq}
	return nil
}

// Get returns the item registered under key.
func (r *Repository[T]) Get(key string) (T, bool) {
	s, ok := r.items[key]
	return s.item, ok
}

// Has reports whether key is registered.
func (r *Repository[T]) Has(key string) bool {
	_, ok := r.items[key]
	return ok
}

// Rekey moves the item registered under oldKey to newKey. It fails without
// changes when newKey holds a different item.
func (r *Repository[T]) Rekey(newKey, oldKey string) error {
	if newKey == oldKey {
		return nil
	}
	s, ok := r.items[oldKey]
	if !ok {
		return fmt.Errorf("repository: %s has no key %q", r.name, oldKey)
	}
	if cur, ok := r.items[newKey]; ok && cur.item != s.item {
		return &DuplicateError{Name: r.name, Key: newKey}
	}
	delete(r.items, oldKey)
	r.items[newKey] = s
	return nil
}

// Remove unregisters key.
func (r *Repository[T]) Remove(key string) {
	delete(r.items, key)
}

// All returns all items in insertion order.
func (r *Repository[T]) All() []T {
	return r.Find(nil)
}

// Keys returns all keys in insertion order.
func (r *Repository[T]) Keys() []string {
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return r.items[keys[i]].seq < r.items[keys[j]].seq
	})
	return keys
}

// Find returns the items matching fn in insertion order. A nil fn matches all.
func (r *Repository[T]) Find(fn func(T) bool) []T {
	var items []T
	for _, k := range r.Keys() {
		if it := r.items[k].item; fn == nil || fn(it) {
			items = append(items, it)
		}
	}
	return items
}

// Clear removes all items.
func (r *Repository[T]) Clear() {
	clear(r.items)
}

// Snapshot is a point-in-time copy of a Repository.
type Snapshot[T comparable] struct {
	items map[string]slot[T]
	seq   uint64
}

// Snapshot captures the current key bindings.
func (r *Repository[T]) Snapshot() *Snapshot[T] {
	items := make(map[string]slot[T], len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	return &Snapshot[T]{items: items, seq: r.seq}
}

// Restore resets the key bindings to the given snapshot.
func (r *Repository[T]) Restore(s *Snapshot[T]) {
	r.items = make(map[string]slot[T], len(s.items))
	for k, v := range s.items {
		r.items[k] = v
	}
	r.seq = s.seq
}
