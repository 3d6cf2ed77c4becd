// Package db implements DB, the top-level registry that owns every
// Collection, resolves relation wiring (including forward references to
// collections not yet created), and exposes a collectionCreated signal so
// dependents can react to late registration.
package db

import (
	"fmt"
	"sync"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/signal"
	"github.com/keyperdb/keyper/pkg/source"
)

var log = logging.GetLogger("db")

// DB owns a set of named Collections and implements collection.Registry so
// Collection can resolve and defer-wire relation targets without an
// import cycle back to this package.
type DB struct {
	mu            sync.Mutex
	collections   map[string]*collection.Collection
	pendingWiring map[string][]func(*collection.Collection)

	CollectionCreated signal.Signal[*collection.Collection]
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		collections:   map[string]*collection.Collection{},
		pendingWiring: map[string][]func(*collection.Collection){},
	}
}

// CreateCollection registers a new Collection named name, backed by src,
// wires its declared relations (resolving immediately or deferring to a
// not-yet-created target), runs any wiring that targets name deferred by
// an earlier collection, and emits CollectionCreated.
func (d *DB) CreateCollection(name string, cfg collection.Config, src source.DataSource) (*collection.Collection, error) {
	d.mu.Lock()
	if _, exists := d.collections[name]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: collection %q already registered", collection.ErrConfiguration, name)
	}
	c, err := collection.New(name, cfg, src, d)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.collections[name] = c
	deferred := d.pendingWiring[name]
	delete(d.pendingWiring, name)
	d.mu.Unlock()

	if err := c.WireRelations(d); err != nil {
		return nil, err
	}
	for _, fn := range deferred {
		fn(c)
	}

	log.Info("collection created", "name", name)
	d.CollectionCreated.Emit(c)
	return c, nil
}

// GetCollection looks up a registered collection by name. Satisfies
// collection.Registry.
func (d *DB) GetCollection(name string) (*collection.Collection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.collections[name]
	return c, ok
}

// DeferWiring queues fn to run once targetName is registered (or
// immediately, if it already is). Satisfies collection.Registry.
func (d *DB) DeferWiring(targetName string, fn func(*collection.Collection)) {
	d.mu.Lock()
	target, ok := d.collections[targetName]
	if !ok {
		d.pendingWiring[targetName] = append(d.pendingWiring[targetName], fn)
	}
	d.mu.Unlock()
	if ok {
		fn(target)
	}
}

// GetCollectionOf returns the collection that owns e.
func (d *DB) GetCollectionOf(e *collection.Entity) *collection.Collection {
	return e.Collection()
}

// Collections returns the names of every registered collection.
func (d *DB) Collections() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.collections))
	for name := range d.collections {
		out = append(out, name)
	}
	return out
}

// OnCollectionCreated registers fn to run for every future
// CreateCollection call (and, for names already registered, does not
// replay past creations — callers that need the current set should call
// Collections first).
func (d *DB) OnCollectionCreated(fn func(*collection.Collection)) (detach func()) {
	return d.CollectionCreated.Attach(fn)
}
