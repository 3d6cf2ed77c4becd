package collection

import (
	"context"
	"encoding/json"

	"github.com/keyperdb/keyper/internal/index"
	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/pkg/pk"
	"github.com/keyperdb/keyper/pkg/source"
)

// mergeMask overlays extra onto base (base wins ties are not expected;
// extra's keys simply get added, per "collection-level EagerLoad is
// merged into every call's requested mask").
func mergeMask(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	out := map[string]any{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (c *Collection) effectiveMask(mask map[string]any) map[string]any {
	return mergeMask(mask, c.cfg.EagerLoad)
}

// FetchOne returns the cached entity for key if present, else loads it
// from the Data Source, deduplicating concurrent requests for the same
// key via a singleflight.Group keyed on pk. mask requests relation
// hydration. forceLoad bypasses the cache hit and always re-fetches from
// the Data Source.
func (c *Collection) FetchOne(ctx context.Context, key pk.PK, mask map[string]any, forceLoad bool) (*Entity, error) {
	if !forceLoad {
		if e, ok := c.Get(key); ok {
			if m := c.effectiveMask(mask); len(m) > 0 {
				if err := c.hydrate(ctx, []*Entity{e}, m); err != nil {
					return nil, err
				}
			}
			return e, nil
		}
	}

	v, err, _ := c.pendingItems.Do(pk.String(key), func() (any, error) {
		raw, err := c.source.FindOne(ctx, key, nil)
		if err != nil {
			return nil, err
		}
		return c.Insert(raw)
	})
	if err != nil {
		return nil, err
	}
	e := v.(*Entity)
	if m := c.effectiveMask(mask); len(m) > 0 {
		if err := c.hydrate(ctx, []*Entity{e}, m); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// fetchKey builds a stable dedup key for a Fetch/Filter request.
func fetchKey(params FilterParams) string {
	b, _ := json.Marshal(struct {
		Where     any  `json:"where"`
		OrderBy   any  `json:"orderBy"`
		Limit     int  `json:"limit"`
		Offset    int  `json:"offset"`
		HasLimit  bool `json:"hasLimit"`
		HasOffset bool `json:"hasOffset"`
	}{params.Where, params.OrderBy, params.Limit, params.Offset, params.HasLimit, params.HasOffset})
	return string(b)
}

// queryCacheKey builds the query-cache fingerprint for params: a
// stable-stringify of where alone, since the cache only ever holds
// unpaged result sets — a key is computed only when neither limit nor
// offset is set. ok is false when params is paged.
func queryCacheKey(params FilterParams) (key string, ok bool) {
	if params.HasLimit || params.HasOffset {
		return "", false
	}
	b, _ := json.Marshal(normalizeWhere(params.Where))
	return string(b), true
}

// queryFromCache resolves a cached query's frozen item set against
// orderBy, with Total set to the cached match count. ok is false on a
// cache miss.
func (c *Collection) queryFromCache(cacheKey string, orderBy query.OrderSpec) (*SliceResult, bool) {
	c.mu.Lock()
	cq, hit := c.queries[cacheKey]
	var items []index.Item
	if hit {
		items = cq.items.Items()
	}
	c.mu.Unlock()
	if !hit {
		return nil, false
	}

	fields := make([]any, len(items))
	byPK := make(map[string]*Entity, len(items))
	for i, it := range items {
		e := it.(*Entity)
		fields[i] = e.fields
		byPK[pk.String(e.pkValue)] = e
	}
	ordered, err := query.ApplyPaging(fields, orderBy, 0, 0, false, false)
	if err != nil {
		return nil, false
	}
	out := make([]*Entity, 0, len(ordered))
	for _, f := range ordered {
		fm := f.(map[string]any)
		out = append(out, byPK[pk.String(mustPKOf(fm, c))])
	}
	return &SliceResult{Items: out, Total: len(out)}, true
}

// Fetch runs params against the Data Source, inserting every returned row
// into the cache and returning the matching entities with Total intact.
// Concurrent identical requests are coalesced via a query-keyed
// singleflight.Group. If params carries neither Limit nor Offset and a
// prior Fetch for the same where clause is still cached, that cached
// result is returned without contacting the Data Source, unless
// forceLoad is set.
func (c *Collection) Fetch(ctx context.Context, params FilterParams, mask map[string]any, forceLoad bool) (*SliceResult, error) {
	cacheKey, hasCacheKey := queryCacheKey(params)
	if !forceLoad && hasCacheKey {
		if result, ok := c.queryFromCache(cacheKey, params.OrderBy); ok {
			if m := c.effectiveMask(mask); len(m) > 0 {
				if err := c.hydrate(ctx, result.Items, m); err != nil {
					return nil, err
				}
			}
			return result, nil
		}
	}

	pendingKey := fetchKey(params)
	v, err, _ := c.pendingFetch.Do(pendingKey, func() (any, error) {
		res, err := c.source.Find(ctx, source.FindParams{
			Where:     params.Where,
			OrderBy:   params.OrderBy,
			Limit:     params.Limit,
			Offset:    params.Offset,
			HasLimit:  params.HasLimit,
			HasOffset: params.HasOffset,
		}, nil)
		if err != nil {
			return nil, err
		}
		items := make([]*Entity, 0, len(res.Items))
		for _, raw := range res.Items {
			e, err := c.Insert(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, e)
		}
		if hasCacheKey {
			frozen := index.NewUniqueIndex(true)
			for _, e := range items {
				frozen = frozen.Add(e)
			}
			c.mu.Lock()
			c.queries[cacheKey] = &cachedQuery{where: params.Where, items: frozen}
			c.mu.Unlock()
		}
		return &SliceResult{Items: items, Total: res.Total}, nil
	})
	if err != nil {
		return nil, err
	}
	result := v.(*SliceResult)
	if m := c.effectiveMask(mask); len(m) > 0 {
		if err := c.hydrate(ctx, result.Items, m); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// FetchAll loads every key in keys, tolerating a Data Source response that
// omits some of them. Cached keys are served from the cache and every
// other key goes into a single FindAll call; a key that a FetchOne is
// already loading is not joined with that request and is asked for again.
func (c *Collection) FetchAll(ctx context.Context, keys []pk.PK, mask map[string]any) ([]*Entity, error) {
	missing := make([]pk.PK, 0, len(keys))
	out := make(map[string]*Entity, len(keys))
	for _, key := range keys {
		if e, ok := c.Get(key); ok {
			out[pk.String(key)] = e
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		rows, err := c.source.FindAll(ctx, missing, nil)
		if err != nil {
			return nil, err
		}
		for _, raw := range rows {
			e, err := c.Insert(raw)
			if err != nil {
				return nil, err
			}
			out[pk.String(e.PK())] = e
		}
	}
	result := make([]*Entity, 0, len(keys))
	for _, key := range keys {
		if e, ok := out[pk.String(key)]; ok {
			result = append(result, e)
		}
	}
	if m := c.effectiveMask(mask); len(m) > 0 {
		if err := c.hydrate(ctx, result, m); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Create writes payload to the Data Source, then inserts the (possibly
// server-assigned) returned row into the cache.
func (c *Collection) Create(ctx context.Context, payload map[string]any) (*Entity, error) {
	if c.cfg.BeforeSend != nil {
		payload = c.cfg.BeforeSend(payload)
	}
	raw, err := c.source.Create(ctx, payload, nil)
	if err != nil {
		return nil, err
	}
	return c.Insert(raw)
}

// Update writes m's diff against the cache (or the whole of m.Fields, if
// inplace) to the Data Source, then re-inserts the authoritative returned
// row. With inplace, m is then refreshed from the re-inserted entity,
// rebuilding its nested clones from its relations mask.
func (c *Collection) Update(ctx context.Context, m *MutableEntity, inplace bool) (*Entity, error) {
	var payload map[string]any
	if inplace {
		payload = m.Fields
	} else {
		payload = c.GetDiff(m)
		if len(payload) == 0 {
			if e, ok := c.Get(m.sourcePK); ok {
				return e, nil
			}
		}
	}
	if c.cfg.BeforeSend != nil {
		payload = c.cfg.BeforeSend(payload)
	}
	raw, err := c.source.Update(ctx, m.sourcePK, payload, nil)
	if err != nil {
		return nil, err
	}
	e, err := c.Insert(raw)
	if err != nil {
		return nil, err
	}
	if inplace {
		*m = *newMutableEntity(e, m.relationsMask)
	}
	return e, nil
}

// Delete removes key from the Data Source and evicts any cached copy,
// emitting Removed.
func (c *Collection) Delete(ctx context.Context, key pk.PK) error {
	if err := c.source.Delete(ctx, key, nil); err != nil {
		return err
	}
	if e, ok := c.Get(key); ok {
		c.Remove(e, true)
	}
	return nil
}
