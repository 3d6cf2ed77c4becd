package collection

import (
	"fmt"

	"github.com/keyperdb/keyper/internal/index"
	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/pkg/pk"
)

// Insert constructs (or replaces) a cached entity from raw, cascading
// embedded relation objects and back-reference arrays per the
// "embedded-insert cascading" rule, then emits Inserted synchronously.
func (c *Collection) Insert(raw map[string]any) (*Entity, error) {
	fields := raw
	if c.cfg.ItemPrototype != nil {
		fields = kpath.CloneAssign(c.cfg.ItemPrototype, raw)
	} else {
		fields = kpath.DeepClone(raw).(map[string]any)
	}
	if c.cfg.BeforeInsert != nil {
		fields = c.cfg.BeforeInsert(fields)
	}

	if err := c.cascadeEmbeddedRelations(fields); err != nil {
		return nil, err
	}

	key, err := c.computePK(fields)
	if err != nil {
		return nil, err
	}

	backRefPayloads, err := c.extractBackRefArrays(fields)
	if err != nil {
		return nil, err
	}

	e := &Entity{pkValue: key, fields: fields, collection: c}

	c.mu.Lock()
	previous, _ := c.index.Get(key).(*Entity)
	// Identity stability: a structurally identical
	// re-insert returns the existing reference, leaves index/query-cache
	// state untouched, and does not fire Inserted. Back-reference-array
	// cascading still runs below, since it can invalidate regardless of
	// whether the holder entity's own fields changed.
	stable := previous != nil && kpath.DeepEqual(previous.fields, fields)
	if stable {
		e = previous
	} else {
		c.index = c.index.Add(e)
		for field := range c.indexedFields {
			if v, ok := e.Get(field); ok && v != nil {
				c.indexes[field].Add(v, e)
			}
			if previous != nil {
				if pv, ok := previous.Get(field); ok && pv != nil && !kpath.DeepEqual(pv, func() any { v, _ := e.Get(field); return v }()) {
					c.indexes[field].Remove(pv, previous.PK())
				}
			}
		}
		c.addToMatchingQueriesLocked(e)
	}
	c.mu.Unlock()

	if err := c.cascadeBackRefArrays(e, previous, backRefPayloads); err != nil {
		return nil, err
	}

	if stable {
		return previous, nil
	}

	log.Debug("inserted", "collection", c.name, "pk", pk.String(key))
	c.Inserted.Emit(InsertEvent{New: e, Previous: previous})
	return e, nil
}

// cascadeEmbeddedRelations replaces any fully-embedded relation object
// under a forward relation's field with a cascade-inserted foreign key.
func (c *Collection) cascadeEmbeddedRelations(fields map[string]any) error {
	for field, rc := range c.relations {
		v, ok := fields[field]
		if !ok || v == nil {
			continue
		}
		target, ok := c.registry.GetCollection(rc.Collection)
		if !ok {
			if rc.Collection == c.name {
				target = c
			} else {
				return fmt.Errorf("%w: relation %q target collection %q not registered", ErrConfiguration, field, rc.Collection)
			}
		}
		if rc.Many {
			list, ok := v.([]any)
			if !ok {
				continue
			}
			fkList := make([]any, 0, len(list))
			for _, item := range list {
				obj, ok := item.(map[string]any)
				if !ok {
					fkList = append(fkList, item)
					continue
				}
				inserted, err := target.Insert(obj)
				if err != nil {
					return err
				}
				fkList = append(fkList, inserted.PK())
			}
			fields[rc.ForeignKey] = fkList
		} else {
			obj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			inserted, err := target.Insert(obj)
			if err != nil {
				return err
			}
			fields[rc.ForeignKey] = inserted.PK()
		}
		delete(fields, field)
	}
	return nil
}

type backRefPayload struct {
	field string
	bc    *BackRefConfig
	items []map[string]any
}

// extractBackRefArrays pulls declared back-reference accessor fields
// (e.g. "posts") off fields, to be cascade-inserted after the owning
// entity itself is indexed (so the fk it assigns resolves).
func (c *Collection) extractBackRefArrays(fields map[string]any) ([]backRefPayload, error) {
	var out []backRefPayload
	for field, bc := range c.backRefs {
		v, ok := fields[field]
		if !ok || v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		items := make([]map[string]any, 0, len(list))
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			items = append(items, obj)
		}
		out = append(out, backRefPayload{field: field, bc: bc, items: items})
		delete(fields, field)
	}
	return out, nil
}

// cascadeBackRefArrays inserts each declared back-reference payload into
// its source collection with the foreign key set to e's pk, then removes
// any previously-referenced entity that is no longer present in the new
// payload (cascade delete on the set difference).
func (c *Collection) cascadeBackRefArrays(e *Entity, previous *Entity, payloads []backRefPayload) error {
	for _, p := range payloads {
		src, ok := c.registry.GetCollection(p.bc.SourceCollection)
		if !ok {
			return fmt.Errorf("%w: back-reference %q source collection %q not registered", ErrConfiguration, p.field, p.bc.SourceCollection)
		}
		var previousBucket *index.UniqueIndex
		if previous != nil {
			previousBucket = src.bucketFor(p.bc.ForeignKey, previous.PK())
		} else {
			previousBucket = index.Empty()
		}
		stillReferenced := map[string]bool{}
		for _, obj := range p.items {
			obj[p.bc.ForeignKey] = e.PK()
			inserted, err := src.Insert(obj)
			if err != nil {
				return err
			}
			stillReferenced[pk.String(inserted.PK())] = true
		}
		for _, item := range previousBucket.Items() {
			holder := item.(*Entity)
			if !stillReferenced[pk.String(holder.PK())] {
				src.Remove(holder, true)
			}
		}
	}
	return nil
}

// Remove evicts pk from the cache and, if notify, emits Removed.
func (c *Collection) Remove(e *Entity, notify bool) {
	c.mu.Lock()
	c.index = c.index.Remove(e.PK())
	for field, ni := range c.indexes {
		if v, ok := e.Get(field); ok && v != nil {
			ni.Remove(v, e.PK())
		}
	}
	c.invalidateQueriesContainingLocked(e.PK())
	c.mu.Unlock()

	log.Debug("removed", "collection", c.name, "pk", pk.String(e.PK()))
	if notify {
		c.Removed.Emit(e)
	}
}
