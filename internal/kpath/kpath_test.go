package kpath

import (
	"testing"

	"github.com/keyperdb/keyper/pkg/pk"
)

func TestGet_NestedPath(t *testing.T) {
	v := map[string]any{
		"address": map[string]any{"city": "Goiania"},
	}
	got, ok := Get(v, "address.city")
	if !ok || got != "Goiania" {
		t.Fatalf("Get(address.city) = %v, %v", got, ok)
	}
}

func TestGet_MissingSegmentIsAbsent(t *testing.T) {
	v := map[string]any{"address": map[string]any{}}
	_, ok := Get(v, "address.city")
	if ok {
		t.Fatal("expected missing field to report absent")
	}
}

func TestGet_NilLeafIsPresent(t *testing.T) {
	v := map[string]any{"middleName": nil}
	got, ok := Get(v, "middleName")
	if !ok || got != nil {
		t.Fatalf("Get(middleName) = %v, %v, want nil, true", got, ok)
	}
}

func TestSet_CreatesIntermediateMaps(t *testing.T) {
	m := map[string]any{}
	Set(m, "address.city", "Goiania")
	got, ok := Get(m, "address.city")
	if !ok || got != "Goiania" {
		t.Fatalf("Set then Get = %v, %v", got, ok)
	}
}

func TestDeepClone_IsIndependent(t *testing.T) {
	original := map[string]any{"tags": []any{"a", "b"}}
	clone := DeepClone(original).(map[string]any)
	clone["tags"].([]any)[0] = "mutated"
	if original["tags"].([]any)[0] != "a" {
		t.Fatal("mutating the clone affected the original")
	}
}

func TestCloneAssign_OverlaysOverBase(t *testing.T) {
	base := map[string]any{"color": "red", "size": "M"}
	over := map[string]any{"color": "blue"}
	merged := CloneAssign(base, over)
	if merged["color"] != "blue" || merged["size"] != "M" {
		t.Fatalf("unexpected merge result: %v", merged)
	}
}

func TestDeepEqual_NumericWidening(t *testing.T) {
	a := map[string]any{"count": int(3)}
	b := map[string]any{"count": float64(3)}
	if !DeepEqual(a, b) {
		t.Fatal("expected int(3) and float64(3) to compare equal")
	}
}

func TestDeepEqual_CompoundKeys(t *testing.T) {
	a := pk.NewCompound("x", 1)
	b := pk.NewCompound("x", 1)
	if !DeepEqual(a, b) {
		t.Fatal("expected equal compound keys to compare equal")
	}
}

func TestSortedInsertAt(t *testing.T) {
	keys := []pk.PK{"a", "c", "e"}
	if i := SortedInsertAt(keys, "b"); i != 1 {
		t.Errorf("insert b: got %d, want 1", i)
	}
	if i := SortedInsertAt(keys, "a"); i != 0 {
		t.Errorf("insert existing a: got %d, want 0", i)
	}
	if i := SortedInsertAt(keys, "z"); i != 3 {
		t.Errorf("insert z: got %d, want 3", i)
	}
}
