// Package pk defines keyper's primary-key representation: a primitive
// (string or number) or an immutable ordered tuple of primitives.
package pk

import (
	"fmt"
	"strings"
)

// PK is either a primitive (string, int, int64, float64) or a Compound
// tuple built with NewCompound. Equality for index lookup is by the
// string-coerced form (String); order is by Compare.
type PK = any

// Compound is a frozen ordered tuple of primitive key components. The
// backing array is copied at construction so callers cannot mutate it
// through the value returned by NewCompound.
type Compound struct {
	parts []any
}

// NewCompound builds a frozen compound key from its components.
func NewCompound(parts ...any) Compound {
	frozen := make([]any, len(parts))
	copy(frozen, parts)
	return Compound{parts: frozen}
}

// Len returns the number of components.
func (c Compound) Len() int { return len(c.parts) }

// At returns the component at i.
func (c Compound) At(i int) any { return c.parts[i] }

// Parts returns a defensive copy of the components.
func (c Compound) Parts() []any {
	out := make([]any, len(c.parts))
	copy(out, c.parts)
	return out
}

// String returns the stable string form used for map-keying.
func (c Compound) String() string {
	return String(c)
}

// String returns the stable stringification of a PK, used as a hash-map
// key throughout the index/collection layers. Two keys compare equal for
// lookup purposes iff their String forms match.
func String(v PK) string {
	if v == nil {
		panic("pk: nil primary key")
	}
	switch t := v.(type) {
	case Compound:
		parts := make([]string, len(t.parts))
		for i, p := range t.parts {
			parts[i] = String(p)
		}
		return strings.Join(parts, "\x1f")
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Compare returns -1, 0, or 1 comparing a and b in ascending order.
// Compound keys compare component-wise, left to right.
func Compare(a, b PK) int {
	ca, aIsCompound := a.(Compound)
	cb, bIsCompound := b.(Compound)
	if aIsCompound || bIsCompound {
		if !aIsCompound {
			ca = NewCompound(a)
		}
		if !bIsCompound {
			cb = NewCompound(b)
		}
		n := ca.Len()
		if cb.Len() < n {
			n = cb.Len()
		}
		for i := 0; i < n; i++ {
			if c := comparePrimitive(ca.At(i), cb.At(i)); c != 0 {
				return c
			}
		}
		return compareInt(ca.Len(), cb.Len())
	}
	return comparePrimitive(a, b)
}

func comparePrimitive(a, b any) int {
	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		return compareFloat(af, bf)
	}
	as, bs := String(a), String(b)
	return strings.Compare(as, bs)
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

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
