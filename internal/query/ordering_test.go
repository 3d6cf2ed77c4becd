package query

import (
	"errors"
	"testing"
)

func names(items []any) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.(map[string]any)["name"].(string)
	}
	return out
}

func rows() []any {
	return []any{
		map[string]any{"name": "bolt", "price": 3.0},
		map[string]any{"name": "Anchor", "price": 1.0},
		map[string]any{"name": "clamp", "price": 2.0},
	}
}

func TestSortSlice_Ascending(t *testing.T) {
	items := rows()
	SortSlice(items, "name")
	got := names(items)
	want := []string{"Anchor", "bolt", "clamp"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSortSlice_Descending(t *testing.T) {
	items := rows()
	SortSlice(items, "price-")
	got := names(items)
	want := []string{"bolt", "clamp", "Anchor"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestApplyPaging_RequiresOrderWhenPaging(t *testing.T) {
	_, err := ApplyPaging(rows(), nil, 0, 2, false, true)
	if !errors.Is(err, ErrPagingWithoutOrder) {
		t.Fatalf("expected ErrPagingWithoutOrder, got %v", err)
	}
}

func TestApplyPaging_SortsThenSlices(t *testing.T) {
	got, err := ApplyPaging(rows(), "name", 1, 1, true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].(map[string]any)["name"] != "bolt" {
		t.Fatalf("expected bolt at offset 1, got %v", got[0])
	}
}

func TestApplyPaging_OffsetBeyondEnd(t *testing.T) {
	got, err := ApplyPaging(rows(), "name", 10, 5, true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no items, got %d", len(got))
	}
}
