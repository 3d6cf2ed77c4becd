package collection

import (
	"context"

	"github.com/keyperdb/keyper/pkg/pk"
	"golang.org/x/sync/errgroup"
)

// hydrate eagerly loads the relations named in mask for items, one
// FetchAll per relation field (deduplicating foreign keys across all
// items), recursing into nested masks, and running every field's load
// concurrently via errgroup. Back-
// reference fields are skipped: they resolve lazily through the cache's
// own indexes and never require a Data Source round trip.
func (c *Collection) hydrate(ctx context.Context, items []*Entity, mask map[string]any) error {
	if len(items) == 0 || len(mask) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for field, sub := range mask {
		field, sub := field, sub
		rc, ok := c.relations[field]
		if !ok {
			continue // back-reference or unknown field: no fetch needed
		}
		g.Go(func() error {
			return c.hydrateOne(gctx, items, rc, sub)
		})
	}
	return g.Wait()
}

func (c *Collection) hydrateOne(ctx context.Context, items []*Entity, rc *RelationConfig, sub any) error {
	target, ok := c.registry.GetCollection(rc.Collection)
	if !ok {
		if rc.Collection != c.name {
			return nil
		}
		target = c
	}

	seen := map[string]bool{}
	var keys []pk.PK
	for _, e := range items {
		raw, present := e.Get(rc.ForeignKey)
		if !present || raw == nil {
			continue
		}
		if rc.Many {
			list, ok := raw.([]any)
			if !ok {
				continue
			}
			for _, v := range list {
				if s := pk.String(v); !seen[s] {
					seen[s] = true
					keys = append(keys, v)
				}
			}
		} else {
			if s := pk.String(raw); !seen[s] {
				seen[s] = true
				keys = append(keys, raw)
			}
		}
	}
	if len(keys) == 0 {
		return nil
	}

	nestedMask, _ := sub.(map[string]any)
	if _, err := target.FetchAll(ctx, keys, nestedMask); err != nil {
		return err
	}
	return nil
}
