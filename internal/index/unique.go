// Package index implements UniqueIndex (a pk-keyed, sorted-by-pk sequence
// with O(1) lookup) and NonUniqueIndex (a foreign-key bucket map of
// UniqueIndex), the building blocks of Collection's cache and secondary
// indexes.
package index

import (
	"fmt"

	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/pkg/pk"
)

// Item is the minimal shape UniqueIndex needs from a cached value: a
// stable primary key. Collection.Entity implements this.
type Item interface {
	PK() pk.PK
}

// UniqueIndex is a pk-keyed sorted sequence. When Frozen, Add/Remove
// return a new frozen copy; when mutable, they mutate the receiver and
// return it. Exactly one entry exists per string-coerced pk.
type UniqueIndex struct {
	byPK   map[string]Item
	order  []pk.PK
	Frozen bool
}

// NewUniqueIndex returns an empty index with the given frozen mode.
func NewUniqueIndex(frozen bool) *UniqueIndex {
	return &UniqueIndex{byPK: map[string]Item{}, Frozen: frozen}
}

// Len returns the number of entries.
func (u *UniqueIndex) Len() int { return len(u.order) }

// Get returns the item for pk, or nil if absent. Panics if pk is nil.
func (u *UniqueIndex) Get(key pk.PK) Item {
	if key == nil {
		panic("index: nil primary key")
	}
	return u.byPK[pk.String(key)]
}

// Has reports whether pk is present.
func (u *UniqueIndex) Has(key pk.PK) bool {
	if key == nil {
		panic("index: nil primary key")
	}
	_, ok := u.byPK[pk.String(key)]
	return ok
}

// All iterates items in ascending pk order.
func (u *UniqueIndex) All(yield func(Item) bool) {
	for _, k := range u.order {
		item := u.byPK[pk.String(k)]
		if item == nil {
			continue
		}
		if !yield(item) {
			return
		}
	}
}

// Items returns a snapshot slice of items in ascending pk order.
func (u *UniqueIndex) Items() []Item {
	out := make([]Item, 0, len(u.order))
	u.All(func(it Item) bool {
		out = append(out, it)
		return true
	})
	return out
}

// Add inserts or replaces items (on pk collision), keeping sorted order.
// Returns the index that holds the result: u itself if mutable, or a new
// frozen copy if u.Frozen.
func (u *UniqueIndex) Add(items ...Item) *UniqueIndex {
	target := u
	if u.Frozen {
		target = u.Copy(true)
	}
	for _, it := range items {
		target.insertOne(it)
	}
	return target
}

func (u *UniqueIndex) insertOne(it Item) {
	key := it.PK()
	ks := pk.String(key)
	if _, exists := u.byPK[ks]; exists {
		u.byPK[ks] = it
		return
	}
	pos := kpath.SortedInsertAt(u.order, key)
	u.order = append(u.order, nil)
	copy(u.order[pos+1:], u.order[pos:])
	u.order[pos] = key
	u.byPK[ks] = it
}

// Remove deletes the entries for the given pks. Returns the index that
// holds the result, per the same frozen/mutable rule as Add.
func (u *UniqueIndex) Remove(keys ...pk.PK) *UniqueIndex {
	target := u
	if u.Frozen {
		target = u.Copy(true)
	}
	for _, key := range keys {
		target.removeOne(key)
	}
	return target
}

func (u *UniqueIndex) removeOne(key pk.PK) {
	ks := pk.String(key)
	if _, exists := u.byPK[ks]; !exists {
		return
	}
	delete(u.byPK, ks)
	for i, k := range u.order {
		if pk.String(k) == ks {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
}

// Copy returns an independent index with the same contents.
func (u *UniqueIndex) Copy(frozen bool) *UniqueIndex {
	out := &UniqueIndex{
		byPK:   make(map[string]Item, len(u.byPK)),
		order:  make([]pk.PK, len(u.order)),
		Frozen: frozen,
	}
	for k, v := range u.byPK {
		out.byPK[k] = v
	}
	copy(out.order, u.order)
	return out
}

// Freeze marks the index immutable in place.
func (u *UniqueIndex) Freeze() *UniqueIndex {
	u.Frozen = true
	return u
}

// emptyFrozen is the shared empty frozen index returned for back-reference
// buckets that don't exist.
var emptyFrozen = NewUniqueIndex(true)

// Empty returns the shared empty frozen UniqueIndex singleton.
func Empty() *UniqueIndex { return emptyFrozen }

func (u *UniqueIndex) String() string {
	return fmt.Sprintf("UniqueIndex(len=%d, frozen=%v)", u.Len(), u.Frozen)
}
