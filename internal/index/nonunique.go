package index

import "github.com/keyperdb/keyper/pkg/pk"

// NonUniqueIndex maps a stringified foreign-key value to the frozen
// UniqueIndex of entities sharing that value. Empty buckets are pruned.
type NonUniqueIndex struct {
	buckets map[string]*UniqueIndex
}

// NewNonUniqueIndex returns an empty non-unique index.
func NewNonUniqueIndex() *NonUniqueIndex {
	return &NonUniqueIndex{buckets: map[string]*UniqueIndex{}}
}

// Bucket returns the frozen UniqueIndex for fkValue, or the shared empty
// singleton if no entities share that value.
func (n *NonUniqueIndex) Bucket(fkValue pk.PK) *UniqueIndex {
	if fkValue == nil {
		return Empty()
	}
	b, ok := n.buckets[pk.String(fkValue)]
	if !ok {
		return Empty()
	}
	return b
}

// Has reports whether a non-empty bucket exists for fkValue.
func (n *NonUniqueIndex) Has(fkValue pk.PK) bool {
	_, ok := n.buckets[pk.String(fkValue)]
	return ok
}

// Add inserts item into the bucket for fkValue, creating it if absent.
func (n *NonUniqueIndex) Add(fkValue pk.PK, item Item) {
	key := pk.String(fkValue)
	b, ok := n.buckets[key]
	if !ok {
		b = NewUniqueIndex(true)
	}
	n.buckets[key] = b.Add(item)
}

// Remove deletes item's pk from the bucket for fkValue, pruning the bucket
// if it becomes empty.
func (n *NonUniqueIndex) Remove(fkValue pk.PK, itemPK pk.PK) {
	key := pk.String(fkValue)
	b, ok := n.buckets[key]
	if !ok {
		return
	}
	b = b.Remove(itemPK)
	if b.Len() == 0 {
		delete(n.buckets, key)
		return
	}
	n.buckets[key] = b
}
