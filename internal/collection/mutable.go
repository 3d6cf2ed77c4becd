package collection

import (
	"github.com/keyperdb/keyper/internal/index"
	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/pkg/pk"
)

// MutableEntity is a mutable clone of a cached Entity, produced by
// Collection.GetMutable for in-place editing. It carries a relations mask
// recording which back-reference fields were requested, so Update(...,
// inplace) rebuilds the same nested clones when it refreshes the entity.
type MutableEntity struct {
	sourcePK      pk.PK
	Fields        map[string]any
	BackRefs      map[string][]*MutableEntity
	relationsMask map[string]any
}

// PK returns the mutable clone's primary key (may be absent for a
// not-yet-created nested entity).
func (m *MutableEntity) PK() pk.PK { return m.sourcePK }

func newMutableEntity(e *Entity, mask map[string]any) *MutableEntity {
	m := &MutableEntity{
		sourcePK:      e.pkValue,
		Fields:        kpath.DeepClone(e.fields).(map[string]any),
		relationsMask: mask,
	}
	if len(mask) == 0 {
		return m
	}
	m.BackRefs = map[string][]*MutableEntity{}
	for field, nested := range mask {
		bc, ok := e.collection.backRefs[field]
		if !ok {
			continue
		}
		src, ok := e.collection.registry.GetCollection(bc.SourceCollection)
		if !ok {
			continue
		}
		bucket := src.bucketFor(bc.ForeignKey, e.pkValue)
		nestedMask, _ := nested.(map[string]any)
		clones := make([]*MutableEntity, 0, bucket.Len())
		bucket.All(func(it index.Item) bool {
			if ent, ok := it.(*Entity); ok {
				clones = append(clones, newMutableEntity(ent, nestedMask))
			}
			return true
		})
		m.BackRefs[field] = clones
	}
	return m
}
