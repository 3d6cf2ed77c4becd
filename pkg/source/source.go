// Package source defines the Data Source contract: the single interface
// point any concrete backend (REST, SQLite, in-memory fake, ...) must
// satisfy to back a keyper Collection. keyper's core never depends on a
// concrete backend — only on this interface.
package source

import (
	"context"
	"errors"

	"github.com/keyperdb/keyper/pkg/pk"
)

// ErrNotFound is returned by FindOne/Update/Delete when no entity exists
// for the given pk. Concrete Data Sources should wrap it with %w so
// callers can errors.Is(err, source.ErrNotFound).
var ErrNotFound = errors.New("source: not found")

// QueryOptions carries backend-specific, opaque call options (auth
// context, trace ids, ...). Collection never inspects it.
type QueryOptions map[string]any

// FindParams is the normalized shape of a Collection.Fetch/Filter request.
type FindParams struct {
	Where   any
	OrderBy any
	Limit   int
	Offset  int
	HasLimit  bool
	HasOffset bool
}

// SliceArray is a result slice annotated with Total: the full matching
// count ignoring Limit/Offset paging.
type SliceArray struct {
	Items []map[string]any
	Total int
}

// DataSource is the external boundary every Collection is backed by.
type DataSource interface {
	FindOne(ctx context.Context, key pk.PK, opts QueryOptions) (map[string]any, error)
	Find(ctx context.Context, params FindParams, opts QueryOptions) (*SliceArray, error)
	FindAll(ctx context.Context, keys []pk.PK, opts QueryOptions) ([]map[string]any, error)
	Create(ctx context.Context, payload map[string]any, opts QueryOptions) (map[string]any, error)
	Update(ctx context.Context, key pk.PK, payload map[string]any, opts QueryOptions) (map[string]any, error)
	Delete(ctx context.Context, key pk.PK, opts QueryOptions) error
}
