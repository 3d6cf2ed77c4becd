package view

import (
	"context"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/pkg/pk"
)

// PaginatedView extends CollectionView with page-at-a-time Data Source
// loading: Load fetches exactly one page (PageSize items at
// CurrentPage*PageSize offset) and Total reflects the full unpaged match
// count returned by the Data Source.
type PaginatedView struct {
	*CollectionView

	PageSize    int
	CurrentPage int
	Total       int
}

// NewPaginatedView constructs a paginated view. orderBy is mandatory:
// paging without an ordering is a query.ErrPagingWithoutOrder error.
func NewPaginatedView(coll *collection.Collection, q any, orderBy query.OrderSpec, mask map[string]any, pageSize int) *PaginatedView {
	v := &PaginatedView{
		CollectionView: NewCollectionView(coll, q, orderBy, mask),
		PageSize:       pageSize,
	}
	v.handlers = v
	return v
}

// onInsert overrides CollectionView's: a matching item that sorts after
// the page's last item is skipped unless this is the last page, and one
// that sorts before the first item is skipped unless this is the first
// page, since PaginatedView only ever holds a single page's worth of
// Items rather than the full unpaged result set.
func (v *PaginatedView) onInsert(ev collection.InsertEvent) {
	if ev.Previous != nil {
		v.onRemove(ev.Previous)
	}
	if !v.matches(ev.New) {
		return
	}

	v.mu.Lock()
	if _, exists := v.pks[pk.String(ev.New.PK())]; exists {
		v.mu.Unlock()
		return
	}
	if len(v.Items) > 0 {
		cmp := query.Comparator(v.OrderBy)
		isLastPage := v.CurrentPage >= v.PageCount()-1
		isFirstPage := v.CurrentPage == 0
		if !isLastPage && cmp(ev.New.Fields(), v.Items[len(v.Items)-1].Fields()) > 0 {
			v.mu.Unlock()
			return
		}
		if !isFirstPage && cmp(ev.New.Fields(), v.Items[0].Fields()) < 0 {
			v.mu.Unlock()
			return
		}
	}
	v.mu.Unlock()

	ev.New = v.hydrateIfMasked(ev.New)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.insertSortedLocked(ev.New)
}

// onRemove overrides CollectionView's: a removed item matching the
// query decrements Total, which CollectionView has no notion of.
func (v *PaginatedView) onRemove(e *collection.Entity) {
	if v.matches(e) {
		v.mu.Lock()
		v.Total--
		v.mu.Unlock()
	}
	v.CollectionView.onRemove(e)
}

// LoadPage fetches page (0-based) and replaces Items with its contents.
func (v *PaginatedView) LoadPage(ctx context.Context, page int) error {
	v.mu.Lock()
	v.CurrentPage = page
	v.loadSeq++
	mySeq := v.loadSeq
	v.Loading = true
	q, orderBy := v.Query, v.OrderBy
	v.mu.Unlock()

	res, err := v.coll.Fetch(ctx, collection.FilterParams{
		Where:     q,
		OrderBy:   orderBy,
		Offset:    page * v.PageSize,
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
	v.setItemsLocked(res.Items)
	return nil
}

// PageCount returns the number of pages implied by Total and PageSize.
func (v *PaginatedView) PageCount() int {
	if v.PageSize <= 0 {
		return 0
	}
	n := v.Total / v.PageSize
	if v.Total%v.PageSize != 0 {
		n++
	}
	return n
}
