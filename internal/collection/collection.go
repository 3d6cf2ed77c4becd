// Package collection implements keyper's cache + index engine: the
// Collection type that holds immutable entity snapshots, maintains
// secondary indexes and a relation graph, deduplicates in-flight fetches,
// and caches query results.
package collection

import (
	"fmt"
	"sort"
	"sync"

	"github.com/keyperdb/keyper/internal/index"
	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/internal/signal"
	"github.com/keyperdb/keyper/pkg/pk"
	"github.com/keyperdb/keyper/pkg/source"
	"golang.org/x/sync/singleflight"
)

var log = logging.GetLogger("collection")

// InsertEvent is the payload of the inserted signal: the new snapshot and
// the previous one it replaced (nil on first insert).
type InsertEvent struct {
	New      *Entity
	Previous *Entity
}

// cachedQuery is a query-cache entry: the where clause it was computed
// for, and the frozen result set (kept current by Insert/Remove rather
// than re-queried).
type cachedQuery struct {
	where any
	items *index.UniqueIndex
}

// addToMatchingQueriesLocked adds e to every cached query whose where
// clause it now matches. Caller must hold c.mu.
func (c *Collection) addToMatchingQueriesLocked(e *Entity) {
	for _, cq := range c.queries {
		if query.Test(e.fields, normalizeWhere(cq.where)) {
			cq.items = cq.items.Add(e)
		}
	}
}

// invalidateQueriesContainingLocked deletes any cached query whose item
// set contained pk. Caller must hold c.mu.
func (c *Collection) invalidateQueriesContainingLocked(key pk.PK) {
	for k, cq := range c.queries {
		if cq.items.Has(key) {
			delete(c.queries, k)
		}
	}
}

// Collection is the heart of keyper: cache, indexes, relation graph,
// fetch coalescing, and query cache for one entity kind.
type Collection struct {
	name     string
	source   source.DataSource
	cfg      Config
	registry Registry

	mu               sync.Mutex
	index            *index.UniqueIndex
	indexes          map[string]*index.NonUniqueIndex
	indexedFields    map[string]bool
	queries          map[string]*cachedQuery
	relations        map[string]*RelationConfig
	backRefs         map[string]*BackRefConfig
	foreignKeys      map[string]string
	childCollections []string

	pendingItems singleflight.Group
	pendingFetch singleflight.Group

	Inserted signal.Signal[InsertEvent]
	Removed  signal.Signal[*Entity]
}

// New constructs a Collection bound to src, registered under name in reg's
// registry. Relation wiring is performed separately by WireRelations once
// the collection is registered, so forward-declared and circular targets
// can resolve.
func New(name string, cfg Config, src source.DataSource, reg Registry) (*Collection, error) {
	relations, err := parseRelations(cfg.Relations)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		name:          name,
		source:        src,
		cfg:           cfg,
		registry:      reg,
		index:         index.NewUniqueIndex(true),
		indexes:       map[string]*index.NonUniqueIndex{},
		indexedFields: map[string]bool{},
		queries:       map[string]*cachedQuery{},
		relations:     relations,
		backRefs:      map[string]*BackRefConfig{},
		foreignKeys:   map[string]string{},
	}
	for field, rc := range relations {
		c.foreignKeys[rc.ForeignKey] = field
	}
	return c, nil
}

// Name returns the collection's registered name.
func (c *Collection) Name() string { return c.name }

// Config returns the collection's configuration.
func (c *Collection) Config() Config { return c.cfg }

func parseRelations(raw map[string]any) (map[string]*RelationConfig, error) {
	out := map[string]*RelationConfig{}
	for field, v := range raw {
		switch t := v.(type) {
		case string:
			out[field] = &RelationConfig{Field: field, Collection: t}
		case RelationConfig:
			rc := t
			rc.Field = field
			out[field] = &rc
		case *RelationConfig:
			rc := *t
			rc.Field = field
			out[field] = &rc
		default:
			return nil, fmt.Errorf("%w: relation %q has unsupported config type %T", ErrConfiguration, field, v)
		}
	}
	return out, nil
}

// computePK derives the primary key from raw's configured primary-key
// field(s), failing if any component is missing.
func (c *Collection) computePK(raw map[string]any) (pk.PK, error) {
	switch t := c.cfg.PrimaryKey.(type) {
	case string:
		v, ok := raw[t]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: missing primary key field %q", ErrMisuse, t)
		}
		return v, nil
	case []string:
		if len(t) == 1 {
			v, ok := raw[t[0]]
			if !ok || v == nil {
				return nil, fmt.Errorf("%w: missing primary key field %q", ErrMisuse, t[0])
			}
			return v, nil
		}
		parts := make([]any, len(t))
		for i, f := range t {
			v, ok := raw[f]
			if !ok || v == nil {
				return nil, fmt.Errorf("%w: missing primary key component %q", ErrMisuse, f)
			}
			parts[i] = v
		}
		return pk.NewCompound(parts...), nil
	default:
		return nil, fmt.Errorf("%w: collection %q has no usable PrimaryKey config", ErrConfiguration, c.name)
	}
}

// primaryKeyFields returns the configured pk field name(s).
func (c *Collection) primaryKeyFields() []string {
	switch t := c.cfg.PrimaryKey.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	default:
		return nil
	}
}

// Get reads the current cache snapshot for pk without contacting the Data
// Source. Returns (nil, false) if absent.
func (c *Collection) Get(key pk.PK) (*Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.index.Get(key)
	if item == nil {
		return nil, false
	}
	return item.(*Entity), true
}

// Has reports whether pk is currently cached.
func (c *Collection) Has(key pk.PK) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Has(key)
}

// Len returns the number of cached entities.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// bucketFor returns the (frozen) bucket of entities whose field equals
// fkValue, using the lazily maintained NonUniqueIndex for field.
func (c *Collection) bucketFor(field string, fkValue pk.PK) *index.UniqueIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	ni, ok := c.indexes[field]
	if !ok {
		return index.Empty()
	}
	return ni.Bucket(fkValue)
}

// ensureIndexedField marks field for secondary-index maintenance and
// back-fills the index from the current cache contents.
func (c *Collection) ensureIndexedField(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexedFields[field] {
		return
	}
	c.indexedFields[field] = true
	ni := index.NewNonUniqueIndex()
	for _, item := range c.index.Items() {
		e := item.(*Entity)
		if v, ok := e.Get(field); ok && v != nil {
			ni.Add(v, e)
		}
	}
	c.indexes[field] = ni
}

func (c *Collection) registerBackRef(bc *BackRefConfig) {
	c.mu.Lock()
	c.backRefs[bc.Field] = bc
	c.mu.Unlock()
}

func (c *Collection) addChild(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.childCollections {
		if existing == name {
			return
		}
	}
	c.childCollections = append(c.childCollections, name)
}

// ChildCollections returns the names of collections that declared this one
// as their Config.Parent target.
func (c *Collection) ChildCollections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.childCollections))
	copy(out, c.childCollections)
	return out
}

// WireRelations resolves (or defers) every declared relation target,
// installing back-reference accessors on targets and registering the
// index fields those back-references need. Safe to call once, right after
// the collection is registered in reg.
func (c *Collection) WireRelations(reg Registry) error {
	for field, rc := range c.relations {
		if err := c.deriveForeignKey(rc, reg); err != nil {
			return err
		}
		if rc.Collection == c.name {
			c.wireOne(rc, c)
			continue
		}
		if target, ok := reg.GetCollection(rc.Collection); ok {
			c.wireOne(rc, target)
			continue
		}
		captured := rc
		capturedField := field
		reg.DeferWiring(rc.Collection, func(target *Collection) {
			c.wireOne(captured, target)
			_ = capturedField
		})
	}
	return nil
}

func (c *Collection) deriveForeignKey(rc *RelationConfig, reg Registry) error {
	if rc.ForeignKey != "" {
		return nil
	}
	target, ok := reg.GetCollection(rc.Collection)
	var targetPKFields []string
	if ok {
		targetPKFields = target.primaryKeyFields()
	} else if rc.Collection == c.name {
		targetPKFields = c.primaryKeyFields()
	}
	if len(targetPKFields) != 1 {
		return fmt.Errorf("%w: relation %q on %q needs an explicit ForeignKey (target pk is compound or target not yet resolvable)", ErrConfiguration, rc.Field, c.name)
	}
	suffix := "_" + targetPKFields[0]
	if rc.Many {
		suffix += "s"
	}
	rc.ForeignKey = rc.Field + suffix
	return nil
}

func (c *Collection) wireOne(rc *RelationConfig, target *Collection) {
	if rc.BackRef != "" {
		target.registerBackRef(&BackRefConfig{
			Field:            rc.BackRef,
			SourceCollection: c.name,
			ForeignKey:       rc.ForeignKey,
			Many:             rc.Many,
		})
		c.ensureIndexedField(rc.ForeignKey)
	}
	if c.cfg.Parent == rc.Field {
		target.addChild(c.name)
	}
}

// Filter evaluates params against the current cache (no Data Source
// access), choosing the smallest exploitable secondary-index bucket as
// its candidate set when the query has a bare-equality term on an indexed
// field. Requires an OrderSpec when Offset/Limit is set.
type FilterParams struct {
	Where     any
	OrderBy   query.OrderSpec
	Limit     int
	Offset    int
	HasLimit  bool
	HasOffset bool
}

// SliceResult is a result slice annotated with Total (pre-paging match
// count).
type SliceResult struct {
	Items []*Entity
	Total int
}

func (c *Collection) Filter(params FilterParams) (*SliceResult, error) {
	c.mu.Lock()
	candidates, fromIndex := c.candidateSet(params.Where)
	c.mu.Unlock()

	tester := query.TesterErr(normalizeWhere(params.Where))
	matched := make([]any, 0, len(candidates))
	byPK := make(map[string]*Entity, len(candidates))
	for _, it := range candidates {
		e := it.(*Entity)
		ok, err := tester(e.fields)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, e.fields)
			byPK[pk.String(e.pkValue)] = e
		}
	}
	_ = fromIndex

	total := len(matched)
	paged, err := query.ApplyPaging(matched, params.OrderBy, params.Offset, params.Limit, params.HasOffset, params.HasLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(paged))
	for _, f := range paged {
		fm := f.(map[string]any)
		out = append(out, byPK[pk.String(mustPKOf(fm, c))])
	}
	return &SliceResult{Items: out, Total: total}, nil
}

func mustPKOf(fields map[string]any, c *Collection) pk.PK {
	// fields came from an *Entity we already hold, so recomputing via the
	// collection's own pk fields is always well-formed here.
	p, _ := c.computePK(fields)
	return p
}

// candidateSet picks index.Items() or, if where contains a bare-equality
// term on a maintained indexed field, the matching bucket.
func (c *Collection) candidateSet(where any) ([]index.Item, bool) {
	m, ok := where.(map[string]any)
	if ok {
		var best []index.Item
		bestSet := false
		for field := range c.indexedFields {
			v, has := m[field]
			if !has {
				continue
			}
			if _, isOperatorMap := v.(map[string]any); isOperatorMap {
				continue
			}
			bucket := c.indexes[field].Bucket(v)
			items := bucket.Items()
			if !bestSet || len(items) < len(best) {
				best = items
				bestSet = true
			}
		}
		if bestSet {
			return best, true
		}
	}
	return c.index.Items(), false
}

func normalizeWhere(where any) any {
	if where == nil {
		return map[string]any{}
	}
	return where
}

// GetMutable returns a mutable clone of pk's cached entity, with mutable
// clones of any requested back-reference fields installed per mask.
func (c *Collection) GetMutable(key pk.PK, mask map[string]any) (*MutableEntity, error) {
	e, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	return newMutableEntity(e, mask), nil
}

// HasChanges reports whether m differs structurally from the current
// cache entity for its pk.
func (c *Collection) HasChanges(m *MutableEntity) bool {
	diff := c.GetDiff(m)
	return len(diff) > 0
}

// GetDiff computes the field-level diff between m and the current cache
// entity, recursing into back-reference fields per element.
func (c *Collection) GetDiff(m *MutableEntity) map[string]any {
	current, ok := c.Get(m.sourcePK)
	if !ok {
		return kpath.DeepClone(m.Fields).(map[string]any)
	}
	diff := map[string]any{}
	for k, v := range m.Fields {
		if ek, ok := current.fields[k]; !ok || !kpath.DeepEqual(ek, v) {
			diff[k] = v
		}
	}
	for field, clones := range m.BackRefs {
		bc, ok := c.backRefs[field]
		if !ok {
			continue
		}
		src, ok := c.registry.GetCollection(bc.SourceCollection)
		if !ok {
			continue
		}
		if nested := diffBackRef(src, clones); len(nested) > 0 {
			diff[field] = nested
		}
	}
	return diff
}

func diffBackRef(src *Collection, clones []*MutableEntity) []map[string]any {
	var out []map[string]any
	for _, clone := range clones {
		if clone.sourcePK == nil {
			out = append(out, clone.Fields)
			continue
		}
		if d := src.GetDiff(clone); len(d) > 0 {
			d["pk"] = clone.sourcePK
			out = append(out, d)
		}
	}
	return out
}

// sortedFieldNames is a small helper used by tests/tools that want
// deterministic field iteration order.
func sortedFieldNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
