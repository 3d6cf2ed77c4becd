package view

import (
	"context"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/pkg/pk"
)

// LoadMoreView extends CollectionView with infinite-scroll accumulation:
// each LoadMore call fetches the next PageSize items after the
// already-loaded set and merges them in by sorted position, deduping on
// pk rather than replacing Items wholesale.
type LoadMoreView struct {
	*CollectionView

	PageSize int
	Total    int
	Exhausted bool

	offset int
}

// NewLoadMoreView constructs an empty load-more view. Call LoadMore to
// fetch the first page.
func NewLoadMoreView(coll *collection.Collection, q any, orderBy query.OrderSpec, mask map[string]any, pageSize int) *LoadMoreView {
	return &LoadMoreView{
		CollectionView: NewCollectionView(coll, q, orderBy, mask),
		PageSize:       pageSize,
	}
}

// LoadMore fetches the next page and merges it into Items. A no-op once
// Exhausted is true.
func (v *LoadMoreView) LoadMore(ctx context.Context) error {
	v.mu.Lock()
	if v.Exhausted {
		v.mu.Unlock()
		return nil
	}
	v.loadSeq++
	mySeq := v.loadSeq
	v.Loading = true
	q, orderBy, offset := v.Query, v.OrderBy, v.offset
	v.mu.Unlock()

	res, err := v.coll.Fetch(ctx, collection.FilterParams{
		Where:     q,
		OrderBy:   orderBy,
		Offset:    offset,
		Limit:     v.PageSize,
		HasOffset: true,
		HasLimit:  true,
	}, v.mask, false)

	v.mu.Lock()
	defer v.mu.Unlock()
	if mySeq != v.loadSeq {
		return nil
	}
	v.Loading = false
	if err != nil {
		return err
	}
	v.Total = res.Total
	v.offset += len(res.Items)
	if len(res.Items) < v.PageSize {
		v.Exhausted = true
	}
	v.mergeLocked(res.Items, orderBy)
	return nil
}

// Reset clears accumulated Items and offset, so the next LoadMore call
// starts from the beginning again.
func (v *LoadMoreView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Items = nil
	v.pks = map[string]struct{}{}
	v.offset = 0
	v.Exhausted = false
}

func (v *LoadMoreView) mergeLocked(items []*collection.Entity, orderBy query.OrderSpec) {
	cmp := query.Comparator(orderBy)
	for _, e := range items {
		key := pk.String(e.PK())
		if _, exists := v.pks[key]; exists {
			continue
		}
		pos := len(v.Items)
		for i, it := range v.Items {
			if cmp(e.Fields(), it.Fields()) < 0 {
				pos = i
				break
			}
		}
		v.Items = append(v.Items, nil)
		copy(v.Items[pos+1:], v.Items[pos:])
		v.Items[pos] = e
		v.pks[key] = struct{}{}
	}
}
