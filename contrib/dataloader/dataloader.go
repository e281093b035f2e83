// Package dataloader provides generic helpers for loading related records
// in batches instead of one query per record.
//
// A lazy load collects the keys of every record in a result set, splits
// them into bounded batches and groups the rows that come back:
//
//	keys := dataloader.Unique(fkValues)
//	rows, err := dataloader.Batch(ctx, keys, 500, func(ctx context.Context, keys []string) ([]*Row, error) {
//	    return loadWhereIn(ctx, "editor_id", keys)
//	})
//	grouped := dataloader.GroupByKey(rows, func(r *Row) string { return r.EditorID })
package dataloader

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads the entities of one batch of keys.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// Batch calls fn for consecutive chunks of at most size keys and
// concatenates the results. It stops at the first error.
func Batch[K comparable, V any](ctx context.Context, keys []K, size int, fn BatchFunc[K, V]) ([]V, error) {
	var values []V
	for _, chunk := range Chunk(keys, size) {
		vs, err := fn(ctx, chunk)
		if err != nil {
			return nil, err
		}
		values = append(values, vs...)
	}
	return values, nil
}

// Chunk splits keys into consecutive chunks of at most size elements.
// A non-positive size yields a single chunk.
func Chunk[K any](keys []K, size int) [][]K {
	if len(keys) == 0 {
		return nil
	}
	if size <= 0 || size >= len(keys) {
		return [][]K{keys}
	}
	chunks := make([][]K, 0, (len(keys)+size-1)/size)
	for size < len(keys) {
		keys, chunks = keys[size:], append(chunks, keys[:size:size])
	}
	return append(chunks, keys)
}

// Unique returns keys without duplicates, keeping the first occurrence.
func Unique[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	unique := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return unique
}

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with corresponding errors.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups entities by a key function, keeping their order.
// Useful for one-to-many relations where many owners share the same foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped entities to match the order of requested keys.
// Returns a slice of slices where each inner slice contains entities for that key.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}
