package view

import (
	"context"
	"runtime"
	"testing"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/db"
	"github.com/keyperdb/keyper/internal/testutil"
)

func newWidgets(t *testing.T, rows ...map[string]any) (*db.DB, *collection.Collection) {
	t.Helper()
	reg := db.New()
	src := testutil.NewFakeSource(rows...)
	c, err := reg.CreateCollection("widgets", collection.Config{PrimaryKey: "id"}, src)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	return reg, c
}

func TestCollectionView_LoadFromSource(t *testing.T) {
	_, c := newWidgets(t,
		map[string]any{"id": "w1", "color": "red"},
		map[string]any{"id": "w2", "color": "blue"},
	)
	v := NewCollectionView(c, nil, "id", nil)
	defer v.Dispose()

	if err := v.Load(context.Background(), false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(v.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(v.Items))
	}
}

func TestCollectionView_InsertUpdatesLiveSet(t *testing.T) {
	_, c := newWidgets(t)
	v := NewCollectionView(c, map[string]any{"color": "red"}, "id", nil)
	defer v.Dispose()

	if err := v.Load(context.Background(), true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(v.Items) != 0 {
		t.Fatalf("expected an empty view before any insert, got %d", len(v.Items))
	}

	c.Insert(map[string]any{"id": "w1", "color": "red"})
	c.Insert(map[string]any{"id": "w2", "color": "blue"})

	if len(v.Items) != 1 {
		t.Fatalf("expected only the matching insert to appear, got %d", len(v.Items))
	}
	if v.Items[0].PK() != "w1" {
		t.Fatalf("expected w1 in the view, got %v", v.Items[0].PK())
	}
}

func TestCollectionView_InsertMaintainsSortOrder(t *testing.T) {
	_, c := newWidgets(t)
	v := NewCollectionView(c, nil, "name", nil)
	defer v.Dispose()
	v.Load(context.Background(), true)

	c.Insert(map[string]any{"id": "w1", "name": "clamp"})
	c.Insert(map[string]any{"id": "w2", "name": "anchor"})
	c.Insert(map[string]any{"id": "w3", "name": "bolt"})

	got := []string{}
	for _, e := range v.Items {
		name, _ := e.Get("name")
		got = append(got, name.(string))
	}
	want := []string{"anchor", "bolt", "clamp"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCollectionView_RemoveUpdatesLiveSet(t *testing.T) {
	_, c := newWidgets(t)
	v := NewCollectionView(c, nil, "id", nil)
	defer v.Dispose()
	v.Load(context.Background(), true)

	e, _ := c.Insert(map[string]any{"id": "w1", "color": "red"})
	if len(v.Items) != 1 {
		t.Fatalf("expected 1 item after insert, got %d", len(v.Items))
	}
	c.Remove(e, true)
	if len(v.Items) != 0 {
		t.Fatalf("expected the view to drop the removed entity, got %d", len(v.Items))
	}
}

func TestCollectionView_StaleLoadIsDiscarded(t *testing.T) {
	reg := db.New()
	src := testutil.NewFakeSource(map[string]any{"id": "w1", "color": "red"})
	src.Gate = make(chan struct{})
	c, err := reg.CreateCollection("widgets", collection.Config{PrimaryKey: "id"}, src)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	v := NewCollectionView(c, nil, "id", nil)
	defer v.Dispose()

	// Start a Load that will block inside Fetch until the gate opens.
	done := make(chan error, 1)
	go func() { done <- v.Load(context.Background(), false) }()

	// Wait for the blocked Load to register itself as the in-flight
	// sequence, then start (and finish) a newer one from the cache.
	for {
		v.mu.Lock()
		seq := v.loadSeq
		v.mu.Unlock()
		if seq == 1 {
			break
		}
		runtime.Gosched()
	}
	if err := v.Load(context.Background(), true); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(v.Items) != 0 {
		t.Fatalf("expected the empty cache snapshot to win, got %d items", len(v.Items))
	}

	close(src.Gate)
	if err := <-done; err != nil {
		t.Fatalf("first Load: %v", err)
	}
	// The stale Load's result is discarded, but inserting w1 into the
	// cache still fires Inserted, and the live handler admits it.
	if len(v.Items) != 1 {
		t.Fatalf("expected only the live-inserted w1 after the stale Load settled, got %d items", len(v.Items))
	}
}

func TestPaginatedView_LoadPageTracksTotal(t *testing.T) {
	rows := []map[string]any{}
	for i := 0; i < 5; i++ {
		rows = append(rows, map[string]any{"id": string(rune('a' + i)), "n": i})
	}
	_, c := newWidgets(t, rows...)

	v := NewPaginatedView(c, nil, "id", nil, 2)
	defer v.Dispose()
	if err := v.LoadPage(context.Background(), 0); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if v.Total != 5 {
		t.Fatalf("expected Total 5, got %d", v.Total)
	}
	if len(v.Items) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(v.Items))
	}
	if v.PageCount() != 3 {
		t.Fatalf("expected 3 pages for 5 items at size 2, got %d", v.PageCount())
	}
}

func TestLoadMoreView_AccumulatesAcrossPages(t *testing.T) {
	rows := []map[string]any{}
	for i := 0; i < 5; i++ {
		rows = append(rows, map[string]any{"id": string(rune('a' + i)), "n": i})
	}
	_, c := newWidgets(t, rows...)

	v := NewLoadMoreView(c, nil, "id", nil, 2)
	defer v.Dispose()

	if err := v.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if len(v.Items) != 2 {
		t.Fatalf("expected 2 items after first page, got %d", len(v.Items))
	}
	if err := v.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if len(v.Items) != 4 {
		t.Fatalf("expected 4 items accumulated after second page, got %d", len(v.Items))
	}
	if v.Exhausted {
		t.Fatal("expected more pages to remain")
	}
	if err := v.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if len(v.Items) != 5 {
		t.Fatalf("expected all 5 items accumulated, got %d", len(v.Items))
	}
	if !v.Exhausted {
		t.Fatal("expected the view to be exhausted after the final short page")
	}
}

func TestLoadMoreView_ResetClearsAccumulation(t *testing.T) {
	_, c := newWidgets(t,
		map[string]any{"id": "w1", "n": 1},
		map[string]any{"id": "w2", "n": 2},
	)
	v := NewLoadMoreView(c, nil, "id", nil, 2)
	defer v.Dispose()
	v.LoadMore(context.Background())
	if len(v.Items) != 2 {
		t.Fatalf("expected 2 items loaded, got %d", len(v.Items))
	}

	v.Reset()
	if len(v.Items) != 0 || v.Exhausted {
		t.Fatal("expected Reset to clear items and the exhausted flag")
	}
}
