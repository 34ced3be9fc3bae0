// Package local is an embedded document store with locally evaluated
// map/reduce views. It implements bunview.Transport, which makes it a
// drop-in stand-in for a real view server in tests, tooling and offline
// development. Documents are persisted in a sqlite database; views are
// plain Go functions registered per design document.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/bunview"
)

// MapFn emits zero or more index entries for one document. It must be
// free of side effects.
type MapFn func(id string, doc map[string]any, emit func(key, value any))

// ReduceFn folds the values of one key group into a single reduced value.
type ReduceFn func(keys []any, values []any) any

// ViewDef pairs a map function with an optional reduce function.
type ViewDef struct {
	Map    MapFn
	Reduce ReduceFn
}

// Store is the embedded document store. All views must be registered
// before the first query; registration is not safe to run concurrently
// with queries.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	views map[string]map[string]ViewDef
}

// Open opens (or creates) a store at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		id   TEXT PRIMARY KEY,
		body BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &Store{db: db, views: make(map[string]map[string]ViewDef)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AddView registers a view under a design document name.
func (s *Store) AddView(designDoc, name string, def ViewDef) {
	if def.Map == nil {
		panic("local: view needs a map function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[designDoc] == nil {
		s.views[designDoc] = make(map[string]ViewDef)
	}
	s.views[designDoc][name] = def
}

// Put stores a document under id, replacing any previous body.
func (s *Store) Put(ctx context.Context, id string, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, body) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body`, id, body)
	return err
}

// Get loads a document by id. A missing document returns sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (map[string]any, error) {
	var body []byte
	if err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE id = ?`, id).Scan(&body); err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}

// Delete removes a document by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// View implements bunview.Transport.
func (s *Store) View(ctx context.Context, designDoc, name string) (bunview.ViewHandle, error) {
	s.mu.RLock()
	def, ok := s.views[designDoc][name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("local: view %s/%s not registered", designDoc, name)
	}
	return &handle{store: s, def: def}, nil
}
