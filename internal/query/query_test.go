package query

import (
	"errors"
	"testing"
)

func TestTest_Operators(t *testing.T) {
	row := map[string]any{
		"name":  "bolt",
		"color": "red",
		"price": 12.5,
		"tags":  []any{"fastener", "steel"},
	}

	cases := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"bare equality", map[string]any{"color": "red"}, true},
		{"bare equality miss", map[string]any{"color": "blue"}, false},
		{"$eq", map[string]any{"color": map[string]any{"$eq": "red"}}, true},
		{"$ne", map[string]any{"color": map[string]any{"$ne": "blue"}}, true},
		{"$gt", map[string]any{"price": map[string]any{"$gt": 10}}, true},
		{"$gte boundary", map[string]any{"price": map[string]any{"$gte": 12.5}}, true},
		{"$lt false", map[string]any{"price": map[string]any{"$lt": 10}}, false},
		{"$in hit", map[string]any{"color": map[string]any{"$in": []any{"red", "blue"}}}, true},
		{"$nin miss means true", map[string]any{"color": map[string]any{"$nin": []any{"blue"}}}, true},
		{"$any", map[string]any{"tags": map[string]any{"$any": map[string]any{"$eq": "steel"}}}, true},
		{"$all fails on miss", map[string]any{"tags": map[string]any{"$all": map[string]any{"$eq": "steel"}}}, false},
		{"$length", map[string]any{"tags": map[string]any{"$length": 2}}, true},
		{"$and", map[string]any{"$and": []any{
			map[string]any{"color": "red"},
			map[string]any{"price": map[string]any{"$gt": 1}},
		}}, true},
		{"$or one true", map[string]any{"$or": []any{
			map[string]any{"color": "blue"},
			map[string]any{"color": "red"},
		}}, true},
		{"$nor both false", map[string]any{"$nor": []any{
			map[string]any{"color": "blue"},
			map[string]any{"color": "green"},
		}}, true},
		{"$not inverts", map[string]any{"color": map[string]any{"$not": map[string]any{"$eq": "blue"}}}, true},
		{"unknown field is absent, not equal to anything", map[string]any{"missing": map[string]any{"$eq": "x"}}, false},
		{"unknown operator fails closed", map[string]any{"color": map[string]any{"$bogus": "red"}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Test(row, tc.criteria); got != tc.want {
				t.Errorf("Test(%v) = %v, want %v", tc.criteria, got, tc.want)
			}
		})
	}
}

func TestTest_LikeWildcards(t *testing.T) {
	row := map[string]any{"name": "stainless bolt"}

	cases := []struct {
		pattern string
		want    bool
	}{
		{"%bolt", true},
		{"stainless%", true},
		{"%ainless%", true},
		{"%missing%", false},
	}
	for _, tc := range cases {
		got := Test(row, map[string]any{"name": map[string]any{"$like": tc.pattern}})
		if got != tc.want {
			t.Errorf("$like %q = %v, want %v", tc.pattern, got, tc.want)
		}
	}
}

func TestTest_LikeWithoutWildcardPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for unanchored $like pattern")
		}
		if _, ok := r.(*ErrBadPattern); !ok {
			t.Fatalf("expected *ErrBadPattern, got %T", r)
		}
	}()
	Test(map[string]any{"name": "bolt"}, map[string]any{"name": map[string]any{"$like": "bolt"}})
}

func TestTesterErr_WrapsBadPattern(t *testing.T) {
	tester := TesterErr(map[string]any{"name": map[string]any{"$like": "bolt"}})
	_, err := tester(map[string]any{"name": "bolt"})
	var badPattern *ErrBadPattern
	if !errors.As(err, &badPattern) {
		t.Fatalf("expected *ErrBadPattern, got %v", err)
	}
}

func TestTesterErr_PassesThroughMatches(t *testing.T) {
	tester := TesterErr(map[string]any{"color": "red"})
	ok, err := tester(map[string]any{"color": "red"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected match")
	}
}
