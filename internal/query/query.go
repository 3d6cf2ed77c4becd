// Package query implements keyper's Mongo-style predicate language
// (Criteria) and its multi-key ordering comparator (Ordering). Both are
// the external query language used by Collection.Filter/Fetch and by Data
// Sources that choose to serialize them for their own backend.
package query

import (
	"fmt"
	"strings"

	"github.com/keyperdb/keyper/internal/kpath"
)

// Criteria is the wire form of a predicate: a mapping whose keys are
// either operator tokens ("$eq", "$and", ...) or dotted field paths.
type Criteria = any

// ErrBadPattern is returned by $like when the pattern carries neither a
// leading nor a trailing '%' wildcard.
type ErrBadPattern struct {
	Pattern string
}

func (e *ErrBadPattern) Error() string {
	return fmt.Sprintf("query: $like pattern %q has no wildcard", e.Pattern)
}

// Test evaluates criteria against value and reports whether it matches.
func Test(value any, criteria Criteria) bool {
	m, ok := criteria.(map[string]any)
	if !ok {
		// Bare non-object criteria is promoted to {$eq: criteria}.
		return testEq(value, criteria)
	}
	for key, arg := range m {
		if strings.HasPrefix(key, "$") {
			if !testOperator(key, value, arg) {
				return false
			}
			continue
		}
		// Field path: resolve against value, then test the sub-criteria.
		resolved, present := kpath.Get(value, key)
		if !present {
			resolved = nil
		}
		if !Test(resolved, arg) {
			return false
		}
	}
	return true
}

// Tester returns a reusable predicate closure for the given criteria. It
// panics with *ErrBadPattern the same way Test does; use TesterErr when a
// malformed $like pattern must surface as an error instead.
func Tester(criteria Criteria) func(any) bool {
	return func(v any) bool { return Test(v, criteria) }
}

// TesterErr is like Tester but converts a malformed $like pattern into an
// error return instead of a panic, for callers (Collection.Filter) that
// cannot let a bad pattern crash a batch evaluation.
func TesterErr(criteria Criteria) func(any) (bool, error) {
	return func(v any) (result bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				if bp, ok := r.(*ErrBadPattern); ok {
					err = bp
					return
				}
				panic(r)
			}
		}()
		return Test(v, criteria), nil
	}
}

func testOperator(op string, what, arg any) bool {
	switch op {
	case "$eq":
		return testEq(what, arg)
	case "$ne":
		return !testEq(what, arg)
	case "$lt":
		return compareOrUndefined(what, arg, func(c int) bool { return c < 0 })
	case "$lte":
		return compareOrUndefined(what, arg, func(c int) bool { return c <= 0 })
	case "$gt":
		return compareOrUndefined(what, arg, func(c int) bool { return c > 0 })
	case "$gte":
		return compareOrUndefined(what, arg, func(c int) bool { return c >= 0 })
	case "$in":
		return testIn(what, arg)
	case "$nin":
		return !testIn(what, arg)
	case "$like":
		return mustLike(what, arg)
	case "$any":
		return testAny(what, arg)
	case "$all":
		return testAll(what, arg)
	case "$length":
		return testLength(what, arg)
	case "$and":
		return testLogical(what, arg, true)
	case "$or":
		return testLogical(what, arg, false)
	case "$nor":
		return !testLogical(what, arg, false)
	case "$not":
		return !Test(what, arg)
	default:
		// Unknown operators are a configuration error in spirit; treating
		// them as a pass-through would silently widen matches, so they
		// fail closed instead.
		return false
	}
}

func testEq(what, arg any) bool {
	if arg == nil {
		return false
	}
	return kpath.DeepEqual(what, arg)
}

func compareOrUndefined(what, arg any, ok func(int) bool) bool {
	if arg == nil || what == nil {
		return false
	}
	c, comparable := compareValues(what, arg)
	if !comparable {
		return false
	}
	return ok(c)
}

func compareValues(a, b any) (int, bool) {
	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func testIn(what, arg any) bool {
	seq, ok := arg.([]any)
	if !ok {
		return false
	}
	for _, item := range seq {
		if kpath.DeepEqual(what, item) {
			return true
		}
	}
	return false
}

func mustLike(what, arg any) bool {
	pattern, ok := arg.(string)
	if !ok {
		return false
	}
	s, ok := what.(string)
	if !ok {
		return false
	}
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	if !leading && !trailing {
		panic(&ErrBadPattern{Pattern: pattern})
	}
	core := pattern
	if leading {
		core = strings.TrimPrefix(core, "%")
	}
	if trailing {
		core = strings.TrimSuffix(core, "%")
	}
	switch {
	case leading && trailing:
		return strings.Contains(s, core)
	case trailing:
		return strings.HasPrefix(s, core)
	default:
		return strings.HasSuffix(s, core)
	}
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	default:
		return nil, false
	}
}

func testAny(what, sub any) bool {
	items, ok := asSlice(what)
	if !ok {
		return false
	}
	for _, item := range items {
		if Test(item, sub) {
			return true
		}
	}
	return false
}

func testAll(what, sub any) bool {
	items, ok := asSlice(what)
	if !ok {
		return false
	}
	for _, item := range items {
		if !Test(item, sub) {
			return false
		}
	}
	return true
}

func testLength(what, sub any) bool {
	items, ok := asSlice(what)
	length := 0
	if ok {
		length = len(items)
	}
	switch t := sub.(type) {
	case map[string]any:
		return Test(float64(length), t)
	default:
		n, isNum := toFloat(t)
		if !isNum {
			return false
		}
		return float64(length) == n
	}
}

func testLogical(what any, arg any, all bool) bool {
	items, ok := asSlice(arg)
	if !ok {
		return false
	}
	for _, c := range items {
		matched := Test(what, c)
		if all && !matched {
			return false
		}
		if !all && matched {
			return true
		}
	}
	return all
}
