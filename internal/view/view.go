// Package view implements keyper's live query views: CollectionView and
// its PaginatedView/LoadMoreView extensions, which attach to a
// Collection's inserted/removed signals and keep a query result set
// incrementally current.
package view

import (
	"context"
	"sort"
	"sync"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/pkg/pk"
	"golang.org/x/sync/singleflight"
)

var log = logging.GetLogger("view")

// signalHandlers is the pair of callbacks CollectionView attaches to its
// Collection's signals. Embedding types (PaginatedView) replace the
// handlers field with themselves to override insert/remove behavior
// without losing CollectionView's own bookkeeping, since Go method
// promotion through an embedded pointer does not dispatch dynamically.
type signalHandlers interface {
	onInsert(collection.InsertEvent)
	onRemove(*collection.Entity)
}

// CollectionView holds a live, incrementally maintained result set over a
// Collection: Items reflects Query/OrderBy, kept current by reacting to
// the Collection's inserted/removed signals rather than re-querying on
// every change.
type CollectionView struct {
	mu sync.Mutex

	coll *collection.Collection
	mask map[string]any

	Items     []*collection.Entity
	pks       map[string]struct{}
	Loading   bool
	Query     any
	OrderBy   query.OrderSpec
	FromCache bool

	loadSeq  uint64
	hydrate  singleflight.Group
	handlers signalHandlers

	detachInsert func()
	detachRemove func()
}

// NewCollectionView constructs a view over coll and attaches its signal
// handlers. Call Load to populate it.
func NewCollectionView(coll *collection.Collection, q any, orderBy query.OrderSpec, mask map[string]any) *CollectionView {
	v := &CollectionView{
		coll:    coll,
		mask:    mask,
		pks:     map[string]struct{}{},
		Query:   q,
		OrderBy: orderBy,
	}
	v.handlers = v
	v.detachInsert = coll.Inserted.Attach(func(ev collection.InsertEvent) { v.handlers.onInsert(ev) })
	v.detachRemove = coll.Removed.Attach(func(e *collection.Entity) { v.handlers.onRemove(e) })
	return v
}

// Dispose detaches the view from its collection. A disposed view stops
// receiving updates but its last Items snapshot remains readable.
func (v *CollectionView) Dispose() {
	v.detachInsert()
	v.detachRemove()
}

// SetQuery updates the view's filter criteria, reloading only if it
// actually changed (structural equality, not reference equality).
func (v *CollectionView) SetQuery(ctx context.Context, q any, fromCache bool) error {
	v.mu.Lock()
	if kpath.DeepEqual(v.Query, q) {
		v.mu.Unlock()
		return nil
	}
	v.Query = q
	v.mu.Unlock()
	return v.Load(ctx, fromCache)
}

// SetOrderBy updates the view's ordering, reloading only if it changed.
func (v *CollectionView) SetOrderBy(ctx context.Context, orderBy query.OrderSpec, fromCache bool) error {
	v.mu.Lock()
	if kpath.DeepEqual(v.OrderBy, orderBy) {
		v.mu.Unlock()
		return nil
	}
	v.OrderBy = orderBy
	v.mu.Unlock()
	return v.Load(ctx, fromCache)
}

// Load (re)populates Items from the cache (fromCache) or the Data Source.
// A stale response — one whose captured sequence number no longer matches
// the view's current one, because a newer Load started in the meantime —
// is silently discarded instead of clobbering the newer result.
func (v *CollectionView) Load(ctx context.Context, fromCache bool) error {
	v.mu.Lock()
	v.loadSeq++
	mySeq := v.loadSeq
	v.Loading = true
	q, orderBy := v.Query, v.OrderBy
	v.FromCache = fromCache
	v.mu.Unlock()

	params := collection.FilterParams{
		Where:     q,
		OrderBy:   orderBy,
		HasOffset: false,
		HasLimit:  false,
	}

	var items []*collection.Entity
	var err error
	if fromCache {
		var res *collection.SliceResult
		res, err = v.coll.Filter(params)
		if res != nil {
			items = res.Items
		}
	} else {
		var res *collection.SliceResult
		res, err = v.coll.Fetch(ctx, params, v.mask, false)
		if res != nil {
			items = res.Items
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if mySeq != v.loadSeq {
		return nil // superseded by a newer Load
	}
	v.Loading = false
	if err != nil {
		return err
	}
	v.setItemsLocked(items)
	return nil
}

func (v *CollectionView) setItemsLocked(items []*collection.Entity) {
	v.Items = items
	v.pks = make(map[string]struct{}, len(items))
	for _, e := range items {
		v.pks[pk.String(e.PK())] = struct{}{}
	}
}

func (v *CollectionView) matches(e *collection.Entity) bool {
	q := v.Query
	if q == nil {
		q = map[string]any{}
	}
	return query.Test(e.Fields(), q)
}

// hydrateIfMasked resolves e's masked relations (if the view has a mask)
// via a coalesced fetch, returning e unchanged on a cache miss or error.
func (v *CollectionView) hydrateIfMasked(e *collection.Entity) *collection.Entity {
	if len(v.mask) == 0 {
		return e
	}
	key := pk.String(e.PK())
	hydrated, err, _ := v.hydrate.Do(key, func() (any, error) {
		return v.coll.FetchOne(context.Background(), e.PK(), v.mask, false)
	})
	if err != nil {
		log.Warn("view hydrate failed", "error", err)
		return e
	}
	if hydrated == nil {
		return e
	}
	return hydrated.(*collection.Entity)
}

// insertSortedLocked inserts e into Items at its sorted position under
// OrderBy. Caller must hold v.mu and have already confirmed e isn't
// already tracked in v.pks.
func (v *CollectionView) insertSortedLocked(e *collection.Entity) {
	pos := sort.Search(len(v.Items), func(i int) bool {
		return query.Comparator(v.OrderBy)(v.Items[i].Fields(), e.Fields()) >= 0
	})
	v.Items = append(v.Items, nil)
	copy(v.Items[pos+1:], v.Items[pos:])
	v.Items[pos] = e
	v.pks[pk.String(e.PK())] = struct{}{}
}

func (v *CollectionView) onInsert(ev collection.InsertEvent) {
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
	v.mu.Unlock()

	ev.New = v.hydrateIfMasked(ev.New)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.insertSortedLocked(ev.New)
}

func (v *CollectionView) onRemove(e *collection.Entity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := pk.String(e.PK())
	if _, exists := v.pks[key]; !exists {
		return
	}
	delete(v.pks, key)
	for i, it := range v.Items {
		if pk.String(it.PK()) == key {
			v.Items = append(v.Items[:i], v.Items[i+1:]...)
			break
		}
	}
}
