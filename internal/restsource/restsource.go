// Package restsource implements a source.DataSource that delegates to a
// remote HTTP service, one collection per base path:
//
//	GET    {base}/{collection}/{pk}
//	POST   {base}/{collection}/find        {where, orderBy, limit, offset}
//	POST   {base}/{collection}/find-all    {pks}
//	POST   {base}/{collection}
//	PATCH  {base}/{collection}/{pk}
//	DELETE {base}/{collection}/{pk}
//
// The server's JSON response is taken as authoritative: whatever it
// returns for Create/Update replaces the caller's payload wholesale
// before it reaches the cache, the same way FindOne/Find/FindAll rows do.
package restsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/keyperdb/keyper/pkg/pk"
	"github.com/keyperdb/keyper/pkg/source"
)

// Source is a source.DataSource over HTTP.
type Source struct {
	client     *http.Client
	baseURL    string
	collection string
}

// New returns a Source bound to baseURL, scoped to collectionName.
func New(baseURL, collectionName string, timeout time.Duration) *Source {
	return &Source{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		collection: collectionName,
	}
}

func (s *Source) url(parts ...string) string {
	u := s.baseURL + "/" + url.PathEscape(s.collection)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (s *Source) do(ctx context.Context, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("restsource: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("restsource: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("restsource: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", source.ErrNotFound, method, url)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("restsource: %s %s: status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("restsource: decode response: %w", err)
	}
	return nil
}

// FindOne fetches a single row by pk.
func (s *Source) FindOne(ctx context.Context, key pk.PK, _ source.QueryOptions) (map[string]any, error) {
	var row map[string]any
	if err := s.do(ctx, http.MethodGet, s.url(pk.String(key)), nil, &row); err != nil {
		return nil, err
	}
	return row, nil
}

type findRequest struct {
	Where     any  `json:"where,omitempty"`
	OrderBy   any  `json:"orderBy,omitempty"`
	Limit     int  `json:"limit,omitempty"`
	Offset    int  `json:"offset,omitempty"`
	HasLimit  bool `json:"hasLimit"`
	HasOffset bool `json:"hasOffset"`
}

type findResponse struct {
	Items []map[string]any `json:"items"`
	Total int               `json:"total"`
}

// Find delegates to the server's find endpoint.
func (s *Source) Find(ctx context.Context, params source.FindParams, _ source.QueryOptions) (*source.SliceArray, error) {
	var resp findResponse
	req := findRequest{
		Where:     params.Where,
		OrderBy:   params.OrderBy,
		Limit:     params.Limit,
		Offset:    params.Offset,
		HasLimit:  params.HasLimit,
		HasOffset: params.HasOffset,
	}
	if err := s.do(ctx, http.MethodPost, s.url("find"), req, &resp); err != nil {
		return nil, err
	}
	return &source.SliceArray{Items: resp.Items, Total: resp.Total}, nil
}

// FindAll delegates to the server's find-all endpoint, which is allowed
// to omit keys that don't exist.
func (s *Source) FindAll(ctx context.Context, keys []pk.PK, _ source.QueryOptions) ([]map[string]any, error) {
	strKeys := make([]string, len(keys))
	for i, k := range keys {
		strKeys[i] = pk.String(k)
	}
	var rows []map[string]any
	if err := s.do(ctx, http.MethodPost, s.url("find-all"), map[string]any{"pks": strKeys}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Create POSTs payload and returns the server's authoritative row.
func (s *Source) Create(ctx context.Context, payload map[string]any, _ source.QueryOptions) (map[string]any, error) {
	var row map[string]any
	if err := s.do(ctx, http.MethodPost, s.url(), payload, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Update PATCHes payload and returns the server's authoritative row.
func (s *Source) Update(ctx context.Context, key pk.PK, payload map[string]any, _ source.QueryOptions) (map[string]any, error) {
	var row map[string]any
	if err := s.do(ctx, http.MethodPatch, s.url(pk.String(key)), payload, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes key.
func (s *Source) Delete(ctx context.Context, key pk.PK, _ source.QueryOptions) error {
	return s.do(ctx, http.MethodDelete, s.url(pk.String(key)), nil, nil)
}
