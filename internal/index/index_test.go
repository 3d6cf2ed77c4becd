package index

import (
	"testing"

	"github.com/keyperdb/keyper/pkg/pk"
)

type testItem struct {
	key pk.PK
}

func (t testItem) PK() pk.PK { return t.key }

func TestUniqueIndex_AddMutable(t *testing.T) {
	u := NewUniqueIndex(false)
	result := u.Add(testItem{"b"}, testItem{"a"}, testItem{"c"})
	if result != u {
		t.Fatal("mutable index should return itself")
	}
	if u.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", u.Len())
	}
	items := u.Items()
	if items[0].PK() != "a" || items[1].PK() != "b" || items[2].PK() != "c" {
		t.Fatalf("expected sorted order, got %v", items)
	}
}

func TestUniqueIndex_AddFrozenReturnsCopy(t *testing.T) {
	u := NewUniqueIndex(true)
	u2 := u.Add(testItem{"a"})
	if u2 == u {
		t.Fatal("frozen index must return a new copy")
	}
	if u.Len() != 0 {
		t.Fatal("original frozen index must be unchanged")
	}
	if u2.Len() != 1 {
		t.Fatal("copy should contain the added item")
	}
}

func TestUniqueIndex_AddReplacesOnPKCollision(t *testing.T) {
	u := NewUniqueIndex(false)
	u.Add(testItem{"a"})
	u.Add(testItem{"a"})
	if u.Len() != 1 {
		t.Fatalf("expected collision to replace, not append, got len %d", u.Len())
	}
}

func TestUniqueIndex_RemoveMutable(t *testing.T) {
	u := NewUniqueIndex(false)
	u.Add(testItem{"a"}, testItem{"b"})
	u.Remove("a")
	if u.Len() != 1 || u.Has("a") {
		t.Fatal("expected a removed")
	}
}

func TestUniqueIndex_RemoveFrozenReturnsCopy(t *testing.T) {
	u := NewUniqueIndex(true).Add(testItem{"a"}, testItem{"b"})
	u2 := u.Remove("a")
	if u2 == u {
		t.Fatal("frozen remove must return a new copy")
	}
	if !u.Has("a") {
		t.Fatal("original frozen index must be unchanged")
	}
	if u2.Has("a") {
		t.Fatal("copy should not have the removed item")
	}
}

func TestUniqueIndex_Empty(t *testing.T) {
	if Empty().Len() != 0 {
		t.Fatal("Empty() should have no items")
	}
}

func TestNonUniqueIndex_BucketsByForeignKey(t *testing.T) {
	n := NewNonUniqueIndex()
	n.Add("team-1", testItem{"alice"})
	n.Add("team-1", testItem{"bob"})
	n.Add("team-2", testItem{"carol"})

	b := n.Bucket("team-1")
	if b.Len() != 2 {
		t.Fatalf("expected 2 items in team-1 bucket, got %d", b.Len())
	}
	if n.Bucket("team-3").Len() != 0 {
		t.Fatal("expected empty bucket for unknown fk")
	}
}

func TestNonUniqueIndex_RemovePrunesEmptyBucket(t *testing.T) {
	n := NewNonUniqueIndex()
	n.Add("team-1", testItem{"alice"})
	n.Remove("team-1", "alice")
	if n.Has("team-1") {
		t.Fatal("expected bucket to be pruned once empty")
	}
}
