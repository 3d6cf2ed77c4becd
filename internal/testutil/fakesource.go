package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/pkg/pk"
	"github.com/keyperdb/keyper/pkg/source"
)

// FakeSource is an in-memory source.DataSource whose FindOne/Find calls
// block until released, so tests can assert that concurrent callers were
// coalesced into a single backend hit instead of one per caller.
type FakeSource struct {
	mu   sync.Mutex
	rows map[string]map[string]any

	FindOneCalls int64
	FindCalls    int64
	FindAllCalls int64

	// Gate, if non-nil, is read from before every FindOne/Find returns,
	// letting a test hold every caller at the backend boundary until it
	// chooses to release them.
	Gate chan struct{}
}

// NewFakeSource returns a FakeSource seeded with rows, keyed by their
// string-coerced pk.
func NewFakeSource(rows ...map[string]any) *FakeSource {
	s := &FakeSource{rows: make(map[string]map[string]any)}
	for _, r := range rows {
		if id, ok := r["id"]; ok {
			s.rows[pk.String(id)] = r
		}
	}
	return s
}

func (s *FakeSource) wait() {
	if s.Gate != nil {
		<-s.Gate
	}
}

// FindOne implements source.DataSource.
func (s *FakeSource) FindOne(ctx context.Context, key pk.PK, _ source.QueryOptions) (map[string]any, error) {
	atomic.AddInt64(&s.FindOneCalls, 1)
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[pk.String(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %v", source.ErrNotFound, key)
	}
	return row, nil
}

// Find implements source.DataSource, ignoring params.Where (tests seed
// exactly the rows they want returned). When params.OrderBy is set the
// rows are sorted and Offset/Limit applied; Total is the unpaged count.
func (s *FakeSource) Find(ctx context.Context, params source.FindParams, _ source.QueryOptions) (*source.SliceArray, error) {
	atomic.AddInt64(&s.FindCalls, 1)
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]any, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	paged := rows
	if params.OrderBy != nil {
		var err error
		if paged, err = query.ApplyPaging(rows, params.OrderBy, params.Offset, params.Limit, params.HasOffset, params.HasLimit); err != nil {
			return nil, err
		}
	}
	items := make([]map[string]any, 0, len(paged))
	for _, r := range paged {
		items = append(items, r.(map[string]any))
	}
	return &source.SliceArray{Items: items, Total: len(rows)}, nil
}

// FindAll implements source.DataSource, omitting keys that don't exist.
func (s *FakeSource) FindAll(ctx context.Context, keys []pk.PK, _ source.QueryOptions) ([]map[string]any, error) {
	atomic.AddInt64(&s.FindAllCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		if row, ok := s.rows[pk.String(k)]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// Create implements source.DataSource.
func (s *FakeSource) Create(ctx context.Context, payload map[string]any, _ source.QueryOptions) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := payload["id"]
	if !ok {
		return nil, fmt.Errorf("testutil: FakeSource.Create requires an id field")
	}
	s.rows[pk.String(id)] = payload
	return payload, nil
}

// Update implements source.DataSource.
func (s *FakeSource) Update(ctx context.Context, key pk.PK, payload map[string]any, _ source.QueryOptions) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[pk.String(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %v", source.ErrNotFound, key)
	}
	for k, v := range payload {
		row[k] = v
	}
	return row, nil
}

// Delete implements source.DataSource.
func (s *FakeSource) Delete(ctx context.Context, key pk.PK, _ source.QueryOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[pk.String(key)]; !ok {
		return fmt.Errorf("%w: %v", source.ErrNotFound, key)
	}
	delete(s.rows, pk.String(key))
	return nil
}
