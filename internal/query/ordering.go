package query

import (
	"errors"
	"sort"
	"strings"

	"github.com/keyperdb/keyper/internal/kpath"
)

// OrderSpec is a field path ("name"), a suffixed field path ("name-" for
// descending, "name+"/"name" for ascending), or a sequence of either.
type OrderSpec = any

// ErrPagingWithoutOrder is returned when offset/limit is requested without
// an OrderSpec: paging without a deterministic ordering would make page
// boundaries meaningless.
var ErrPagingWithoutOrder = errors.New("query: offset/limit requires orderBy")

type orderTerm struct {
	path       string
	descending bool
}

func parseSpec(spec OrderSpec) []orderTerm {
	switch t := spec.(type) {
	case nil:
		return nil
	case string:
		return []orderTerm{parseTerm(t)}
	case []string:
		terms := make([]orderTerm, len(t))
		for i, s := range t {
			terms[i] = parseTerm(s)
		}
		return terms
	case []any:
		terms := make([]orderTerm, 0, len(t))
		for _, s := range t {
			if str, ok := s.(string); ok {
				terms = append(terms, parseTerm(str))
			}
		}
		return terms
	default:
		return nil
	}
}

func parseTerm(s string) orderTerm {
	if strings.HasSuffix(s, "-") {
		return orderTerm{path: strings.TrimSuffix(s, "-"), descending: true}
	}
	return orderTerm{path: strings.TrimSuffix(s, "+"), descending: false}
}

// Comparator builds a compound comparator from spec: each term applies in
// sequence and the first non-equal result short-circuits the rest. String
// values are lowercased before comparison.
func Comparator(spec OrderSpec) func(a, b any) int {
	terms := parseSpec(spec)
	return func(a, b any) int {
		for _, term := range terms {
			av, _ := kpath.Get(a, term.path)
			bv, _ := kpath.Get(b, term.path)
			c := compareOrdered(av, bv)
			if term.descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}

func compareOrdered(a, b any) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
		}
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	return 0
}

// SortSlice sorts items in place by spec's comparator (stable, to keep
// equal-key relative order deterministic for paging).
func SortSlice(items []any, spec OrderSpec) {
	cmp := Comparator(spec)
	sort.SliceStable(items, func(i, j int) bool {
		return cmp(items[i], items[j]) < 0
	})
}

// ApplyPaging slices items[offset:offset+limit] after sorting by spec. It
// is an error to request an offset or a limit (hasOffset or hasLimit set,
// whatever the value) without an OrderSpec.
func ApplyPaging(items []any, spec OrderSpec, offset, limit int, hasOffset, hasLimit bool) ([]any, error) {
	if (hasOffset || hasLimit) && !hasOrdering(spec) {
		return nil, ErrPagingWithoutOrder
	}
	if hasOrdering(spec) {
		SortSlice(items, spec)
	}
	if !hasOffset && !hasLimit {
		return items, nil
	}
	start := 0
	if hasOffset {
		start = offset
	}
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if hasLimit {
		end = start + limit
		if end > len(items) {
			end = len(items)
		}
	}
	return items[start:end], nil
}

func hasOrdering(spec OrderSpec) bool {
	return len(parseSpec(spec)) > 0
}
