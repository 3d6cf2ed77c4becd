package collection

import (
	"fmt"

	"github.com/keyperdb/keyper/internal/index"
	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/pkg/pk"
)

// Entity is an immutable-by-convention attribute map with a derived
// primary key and a tag back to its owning collection. It is
// never mutated after construction; Collection replaces it wholesale on
// insert.
type Entity struct {
	pkValue    pk.PK
	fields     map[string]any
	collection *Collection
}

// PK returns the entity's primary key. Satisfies index.Item.
func (e *Entity) PK() pk.PK { return e.pkValue }

// Collection returns the owning collection (DB.GetCollectionOf uses this).
func (e *Entity) Collection() *Collection { return e.collection }

// Fields returns the entity's attribute map. Callers must not mutate it;
// Entity carries no copy-on-read guard (REDESIGN note: enforced by
// convention, not by a runtime freeze), mirroring how the rest of the
// package treats cached values as read-only handles.
func (e *Entity) Fields() map[string]any { return e.fields }

// Get resolves a dotted field path against the entity's own attributes
// (not through relations).
func (e *Entity) Get(path string) (any, bool) {
	return kpath.Get(e.fields, path)
}

// Relation resolves a single forward relation by field name.
func (e *Entity) Relation(field string) (*Entity, error) {
	rc, ok := e.collection.relations[field]
	if !ok {
		return nil, fmt.Errorf("%w: entity has no relation %q", ErrConfiguration, field)
	}
	if rc.Many {
		return nil, fmt.Errorf("%w: relation %q is many-valued, use RelationMany", ErrMisuse, field)
	}
	target, ok := e.collection.registry.GetCollection(rc.Collection)
	if !ok {
		return nil, fmt.Errorf("%w: relation %q target collection %q not found", ErrConfiguration, field, rc.Collection)
	}
	fkValue, present := e.Get(rc.ForeignKey)
	if !present || fkValue == nil {
		return nil, nil
	}
	found, ok := target.Get(fkValue)
	if !ok {
		return nil, fmt.Errorf("relation %q: %w", field, ErrNotFound)
	}
	return found, nil
}

// RelationMany resolves a many-valued forward relation by field name.
func (e *Entity) RelationMany(field string) ([]*Entity, error) {
	rc, ok := e.collection.relations[field]
	if !ok {
		return nil, fmt.Errorf("%w: entity has no relation %q", ErrConfiguration, field)
	}
	if !rc.Many {
		return nil, fmt.Errorf("%w: relation %q is single-valued, use Relation", ErrMisuse, field)
	}
	target, ok := e.collection.registry.GetCollection(rc.Collection)
	if !ok {
		return nil, fmt.Errorf("%w: relation %q target collection %q not found", ErrConfiguration, field, rc.Collection)
	}
	raw, present := e.Get(rc.ForeignKey)
	if !present || raw == nil {
		return nil, nil
	}
	fkList, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: relation %q foreign key %q is not a list", ErrConfiguration, field, rc.ForeignKey)
	}
	out := make([]*Entity, 0, len(fkList))
	for _, fkValue := range fkList {
		found, ok := target.Get(fkValue)
		if !ok {
			return nil, fmt.Errorf("relation %q: %w", field, ErrNotFound)
		}
		out = append(out, found)
	}
	return out, nil
}

// BackRef resolves a back-reference accessor by its declared name,
// returning the frozen UniqueIndex bucket of holders referencing this
// entity (or the shared empty index if none).
func (e *Entity) BackRef(field string) (*index.UniqueIndex, error) {
	bc, ok := e.collection.backRefs[field]
	if !ok {
		return nil, fmt.Errorf("%w: entity has no back-reference %q", ErrConfiguration, field)
	}
	src, ok := e.collection.registry.GetCollection(bc.SourceCollection)
	if !ok {
		return nil, fmt.Errorf("%w: back-reference %q source collection %q not found", ErrConfiguration, field, bc.SourceCollection)
	}
	return src.bucketFor(bc.ForeignKey, e.pkValue), nil
}
