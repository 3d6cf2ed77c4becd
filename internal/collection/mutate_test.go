package collection

import (
	"testing"

	"github.com/keyperdb/keyper/internal/index"
	"github.com/keyperdb/keyper/internal/testutil"
)

func TestInsert_DeepEqualReinsertReturnsSameReference(t *testing.T) {
	c := newWidgets(t, testutil.NewFakeSource())
	first, err := c.Insert(map[string]any{"id": "w1", "color": "red"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	fired := false
	detach := c.Inserted.Attach(func(ev InsertEvent) { fired = true })
	defer detach()

	second, err := c.Insert(map[string]any{"id": "w1", "color": "red"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if second != first {
		t.Fatal("expected a structurally identical re-insert to return the same reference")
	}
	if fired {
		t.Fatal("expected Inserted not to fire for a no-op re-insert")
	}
}

func TestInsert_FieldChangeStillReplacesAndFires(t *testing.T) {
	c := newWidgets(t, testutil.NewFakeSource())
	first, _ := c.Insert(map[string]any{"id": "w1", "color": "red"})

	var got InsertEvent
	c.Inserted.Attach(func(ev InsertEvent) { got = ev })

	second, err := c.Insert(map[string]any{"id": "w1", "color": "blue"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if second == first {
		t.Fatal("expected a changed re-insert to produce a new reference")
	}
	if got.New != second || got.Previous != first {
		t.Fatal("expected Inserted to fire with the new and previous entities")
	}
}

func TestRemove_InvalidatesOnlyQueriesContainingTheRemovedEntity(t *testing.T) {
	c := newWidgets(t, testutil.NewFakeSource())
	red, _ := c.Insert(map[string]any{"id": "w1", "color": "red"})
	c.Insert(map[string]any{"id": "w2", "color": "blue"})

	c.mu.Lock()
	c.queries["red"] = &cachedQuery{where: map[string]any{"color": "red"}, items: index.NewUniqueIndex(true).Add(red)}
	c.queries["blue"] = &cachedQuery{where: map[string]any{"color": "blue"}, items: index.NewUniqueIndex(true)}
	c.mu.Unlock()

	c.Remove(red, false)

	c.mu.Lock()
	_, redStillCached := c.queries["red"]
	_, blueStillCached := c.queries["blue"]
	c.mu.Unlock()
	if redStillCached {
		t.Fatal("expected the query containing the removed entity to be invalidated")
	}
	if !blueStillCached {
		t.Fatal("expected an unrelated cached query to survive")
	}
}
