// Package sqlitesource implements a source.DataSource backed by SQLite: a
// single generic entities table shared by every keyper collection,
// storing each row's attribute map as a JSON blob keyed by collection
// name and primary key.
package sqlitesource

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/keyperdb/keyper/internal/kpath"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/query"
	"github.com/keyperdb/keyper/pkg/pk"
	"github.com/keyperdb/keyper/pkg/source"
)

var log = logging.GetLogger("sqlitesource")

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	collection TEXT NOT NULL,
	pk         TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, pk)
);
CREATE INDEX IF NOT EXISTS idx_entities_collection ON entities(collection);
`

// Source is a source.DataSource over a single SQLite database file,
// scoped to one collection by name.
type Source struct {
	db         *sql.DB
	collection string
	pkField    string
	mu         sync.RWMutex
}

// Open opens (creating if needed) the SQLite database at path and
// initializes the shared entities schema.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info("sqlite source ready", "path", path)
	return db, nil
}

// New returns a Source bound to db, scoped to collectionName, generating
// a uuid for pkField on Create when the payload omits it.
func New(db *sql.DB, collectionName, pkField string) *Source {
	return &Source{db: db, collection: collectionName, pkField: pkField}
}

func (s *Source) row(ctx context.Context, key pk.PK) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE collection = ? AND pk = ?`,
		s.collection, pk.String(key),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %v", source.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitesource: find one: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("sqlitesource: decode row: %w", err)
	}
	return fields, nil
}

// FindOne returns the row for key.
func (s *Source) FindOne(ctx context.Context, key pk.PK, _ source.QueryOptions) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.row(ctx, key)
}

// Find scans every row in the collection, applying params.Where/OrderBy/
// paging in Go (the generic JSON-blob schema has no queryable columns to
// push predicates into).
func (s *Source) Find(ctx context.Context, params source.FindParams, _ source.QueryOptions) (*source.SliceArray, error) {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM entities WHERE collection = ?`, s.collection)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("sqlitesource: find: %w", err)
	}
	defer rows.Close()

	var matched []any
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlitesource: scan row: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			return nil, fmt.Errorf("sqlitesource: decode row: %w", err)
		}
		if query.Test(fields, params.Where) {
			matched = append(matched, fields)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	total := len(matched)
	paged, err := query.ApplyPaging(matched, params.OrderBy, params.Offset, params.Limit, params.HasOffset, params.HasLimit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(paged))
	for _, f := range paged {
		items = append(items, f.(map[string]any))
	}
	return &source.SliceArray{Items: items, Total: total}, nil
}

// FindAll returns every row among keys that exists, silently omitting
// ones that don't.
func (s *Source) FindAll(ctx context.Context, keys []pk.PK, _ source.QueryOptions) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(keys))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range keys {
		fields, err := s.row(ctx, key)
		if err != nil {
			continue
		}
		out = append(out, fields)
	}
	return out, nil
}

// Create assigns a pk (via uuid.New if the payload omits one) and inserts
// the row.
func (s *Source) Create(ctx context.Context, payload map[string]any, _ source.QueryOptions) (map[string]any, error) {
	fields := kpath.DeepClone(payload).(map[string]any)
	if _, ok := fields[s.pkField]; !ok || fields[s.pkField] == nil {
		fields[s.pkField] = uuid.New().String()
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("sqlitesource: encode row: %w", err)
	}

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (collection, pk, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		s.collection, pk.String(fields[s.pkField]), string(data),
	)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlitesource: create: %w", err)
	}
	return fields, nil
}

// Update merges payload over the stored row and writes the result.
func (s *Source) Update(ctx context.Context, key pk.PK, payload map[string]any, _ source.QueryOptions) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.row(ctx, key)
	if err != nil {
		return nil, err
	}
	merged := kpath.CloneAssign(current, payload)
	merged[s.pkField] = key

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("sqlitesource: encode row: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE entities SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND pk = ?`,
		string(data), s.collection, pk.String(key),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitesource: update: %w", err)
	}
	return merged, nil
}

// Delete removes the row for key.
func (s *Source) Delete(ctx context.Context, key pk.PK, _ source.QueryOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = ? AND pk = ?`,
		s.collection, pk.String(key),
	)
	if err != nil {
		return fmt.Errorf("sqlitesource: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitesource: delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", source.ErrNotFound, key)
	}
	return nil
}
