// Package dataloader provides generic helpers for batch loading records:
// matching a batch query result back to the keys that were requested, and
// grouping records by a foreign key.
//
// The storage adapter loads the records of a relation with one IN query
// and uses these helpers to hand every owner its own records:
//
//	pivots, _ := loadPivots(ctx, owner)
//	byTarget := dataloader.GroupByKey(pivots, func(p *Record) any { return p.Field("tag_id") })
//
// Keys are compared with ==, so callers normalise them first
// (graft.NormalizeKey) when the driver may return different integer types.
package dataloader

import (
	"errors"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with corresponding errors.
// When several values share a key the last one wins.
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

// GroupByKey groups entities by a key function, keeping the input order
// inside each group. Useful for one-to-many relationships where multiple
// entities share the same foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// Keys returns the distinct keys of values in first-seen order.
func Keys[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []K {
	seen := make(map[K]struct{}, len(values))
	keys := make([]K, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
