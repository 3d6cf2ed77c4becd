package collection

import "errors"

// Config enumerates a Collection's declarative setup: primary key,
// lifecycle hooks, relations, and parent/child wiring.
type Config struct {
	// PrimaryKey is a field name or, for a compound key, a slice of field
	// names.
	PrimaryKey any

	// BeforeInsert/BeforeSend transform raw payloads on the way in/out.
	BeforeInsert func(map[string]any) map[string]any
	BeforeSend   func(map[string]any) map[string]any

	// Parent names a relation field whose target collection adopts this
	// collection as a child.
	Parent string

	// Relations maps a relation field name to either a bare collection
	// name (string shorthand for a non-many relation with derived
	// foreign key) or a *RelationConfig.
	Relations map[string]any

	// ItemPrototype supplies base fields merged under every constructed
	// entity (the Go analogue of the JS item prototype's own properties).
	ItemPrototype map[string]any

	// EagerLoad is the collection-level default hydration mask, merged
	// into every Fetch/FetchOne/FetchAll call's requested mask.
	EagerLoad map[string]any
}

// RelationConfig is the resolved form of a forward relation declaration.
type RelationConfig struct {
	Field      string
	Collection string
	Many       bool
	ForeignKey string
	BackRef    string
	EagerLoad  bool
}

// BackRefConfig is installed on the *target* of a relation that declared a
// BackRef name: it tells the target collection where (which source
// collection, which foreign-key field on it) to look up the bucket of
// holders referencing a given entity.
type BackRefConfig struct {
	Field            string
	SourceCollection string
	ForeignKey       string
	Many             bool
}

// Registry is the narrow lookup surface Collection needs to resolve
// relation targets and defer wiring until a not-yet-created collection
// appears. *db.DB implements this without collection importing db.
type Registry interface {
	GetCollection(name string) (*Collection, bool)
	DeferWiring(targetName string, fn func(*Collection))
}

// Error classes.
var (
	ErrConfiguration = errors.New("collection: configuration error")
	ErrNotFound      = errors.New("collection: not found")
	ErrMisuse        = errors.New("collection: misuse")
)
