// Package kpath provides pure helpers the collection/index/query engine
// needs on heterogeneous attribute maps: dotted field access, deep
// cloning, structural equality, and sorted insertion-point search.
package kpath

import (
	"reflect"
	"strings"

	"github.com/keyperdb/keyper/pkg/pk"
)

// Get resolves a dot-separated field path against v, which must be (or
// contain, via nested maps) map[string]any values. Traversal through a
// missing key or a nil intermediate yields (nil, false); the path's final
// resolved value, even if nil, yields (nil, true).
func Get(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	segments := strings.Split(path, ".")
	cur := v
	for _, seg := range segments {
		if cur == nil {
			return nil, false
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, exists := m[seg]
		if !exists {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Set writes a value at a dot-separated field path, creating intermediate
// maps as needed. m must be a non-nil map[string]any.
func Set(m map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	cur := m
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
}

// DeepClone deep-copies maps, slices, and Compound keys; scalars are
// returned as-is (they are already immutable in Go).
func DeepClone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepClone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepClone(val)
		}
		return out
	case pk.Compound:
		return pk.NewCompound(t.Parts()...)
	default:
		return v
	}
}

// CloneAssign builds a fresh map by deep-cloning base and then overlaying
// the own keys of over (also deep-cloned), matching the "clone incoming
// data over a fresh object" construction used for cache
// entities. base may be nil.
func CloneAssign(base map[string]any, over map[string]any) map[string]any {
	out := map[string]any{}
	if base != nil {
		for k, v := range base {
			out[k] = DeepClone(v)
		}
	}
	for k, v := range over {
		out[k] = DeepClone(v)
	}
	return out
}

// DeepEqual reports whether a and b are structurally equal, recursing into
// maps and slices. Used for identity-stable re-insert and mutable/cache
// diffing.
func DeepEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize widens numeric scalars to float64 and Compound to []any so
// structurally-equivalent values compare equal regardless of concrete
// numeric type (a common source of false inequality when JSON-decoded
// payloads are compared against hand-built Go values).
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case pk.Compound:
		return normalize(t.Parts())
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// SortedInsertAt returns the index at which key should be inserted into
// keys (sorted ascending by pk.Compare) to keep it sorted. If key already
// has an equal entry, the returned index points at that entry.
func SortedInsertAt(keys []pk.PK, key pk.PK) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if pk.Compare(keys[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
