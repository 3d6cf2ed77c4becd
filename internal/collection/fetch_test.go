package collection

import (
	"context"
	"sync"
	"testing"

	"github.com/keyperdb/keyper/internal/testutil"
)

func TestFetch_CoalescesIdenticalQueries(t *testing.T) {
	src := testutil.NewFakeSource(
		map[string]any{"id": "w1", "color": "red"},
		map[string]any{"id": "w2", "color": "red"},
	)
	src.Gate = make(chan struct{})
	c := newWidgets(t, src)

	params := FilterParams{Where: map[string]any{"color": "red"}}

	const callers = 5
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if _, err := c.Fetch(context.Background(), params, nil, false); err != nil {
				t.Errorf("Fetch: %v", err)
			}
		}()
	}

	close(src.Gate)
	wg.Wait()

	if src.FindCalls != 1 {
		t.Fatalf("expected exactly 1 backend Find call, got %d", src.FindCalls)
	}
}

func TestFetch_DistinctQueriesAreNotCoalesced(t *testing.T) {
	src := testutil.NewFakeSource(
		map[string]any{"id": "w1", "color": "red"},
		map[string]any{"id": "w2", "color": "blue"},
	)
	c := newWidgets(t, src)

	if _, err := c.Fetch(context.Background(), FilterParams{Where: map[string]any{"color": "red"}}, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), FilterParams{Where: map[string]any{"color": "blue"}}, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src.FindCalls != 2 {
		t.Fatalf("expected 2 distinct backend calls, got %d", src.FindCalls)
	}
}

func TestFetch_CachesUnpagedQueryAcrossSequentialCalls(t *testing.T) {
	src := testutil.NewFakeSource(
		map[string]any{"id": "w1", "color": "red"},
		map[string]any{"id": "w2", "color": "blue"},
	)
	c := newWidgets(t, src)
	params := FilterParams{Where: map[string]any{"color": "red"}}

	if _, err := c.Fetch(context.Background(), params, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), params, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src.FindCalls != 1 {
		t.Fatalf("expected the second Fetch to resolve from the query cache, got %d backend calls", src.FindCalls)
	}
}

func TestFetch_ForceLoadBypassesQueryCache(t *testing.T) {
	src := testutil.NewFakeSource(map[string]any{"id": "w1", "color": "red"})
	c := newWidgets(t, src)
	params := FilterParams{Where: map[string]any{"color": "red"}}

	if _, err := c.Fetch(context.Background(), params, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), params, nil, true); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src.FindCalls != 2 {
		t.Fatalf("expected forceLoad to bypass the query cache, got %d backend calls", src.FindCalls)
	}
}

func TestFetch_PagedQueryIsNeverCached(t *testing.T) {
	src := testutil.NewFakeSource(map[string]any{"id": "w1", "color": "red"})
	c := newWidgets(t, src)
	params := FilterParams{Where: map[string]any{"color": "red"}, Limit: 10, HasLimit: true}

	if _, err := c.Fetch(context.Background(), params, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), params, nil, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src.FindCalls != 2 {
		t.Fatalf("expected a paged query never to be cached, got %d backend calls", src.FindCalls)
	}
}

func TestInsert_AddsToMatchingCachedQuery(t *testing.T) {
	src := testutil.NewFakeSource(map[string]any{"id": "w1", "color": "red"})
	c := newWidgets(t, src)
	params := FilterParams{Where: map[string]any{"color": "red"}}

	first, err := c.Fetch(context.Background(), params, nil, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if first.Total != 1 {
		t.Fatalf("expected 1 cached match, got %d", first.Total)
	}

	if _, err := c.Insert(map[string]any{"id": "w2", "color": "red"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	second, err := c.Fetch(context.Background(), params, nil, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if second.Total != 2 {
		t.Fatalf("expected the newly inserted match to join the cached query, got %d", second.Total)
	}
	if src.FindCalls != 1 {
		t.Fatalf("expected the second Fetch still to resolve from cache, got %d backend calls", src.FindCalls)
	}
}

func TestFetchAll_ToleratesMissingKeys(t *testing.T) {
	src := testutil.NewFakeSource(map[string]any{"id": "w1", "color": "red"})
	c := newWidgets(t, src)

	got, err := c.FetchAll(context.Background(), []any{"w1", "missing"}, nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 || got[0].PK() != "w1" {
		t.Fatalf("expected only w1 to come back, got %v", got)
	}
}

func TestFetchAll_SkipsAlreadyCachedKeys(t *testing.T) {
	src := testutil.NewFakeSource(map[string]any{"id": "w2", "color": "blue"})
	c := newWidgets(t, src)
	c.Insert(map[string]any{"id": "w1", "color": "red"})

	got, err := c.FetchAll(context.Background(), []any{"w1", "w2"}, nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both entities, got %d", len(got))
	}
	if src.FindAllCalls != 1 {
		t.Fatalf("expected FindAll to be asked only for the uncached key, got %d calls", src.FindAllCalls)
	}
}

func TestUpdate_NotFoundWhenNoCurrentRow(t *testing.T) {
	src := testutil.NewFakeSource()
	c := newWidgets(t, src)

	m, err := c.GetMutable("ghost", nil)
	if err == nil {
		t.Fatalf("expected GetMutable to fail for an uncached pk, got %v", m)
	}
}

func TestDelete_NotFoundForUncachedKey(t *testing.T) {
	c := newWidgets(t, testutil.NewFakeSource())
	if err := c.Delete(context.Background(), "ghost"); err == nil {
		t.Fatal("expected Delete to fail for a key that was never cached")
	}
}
