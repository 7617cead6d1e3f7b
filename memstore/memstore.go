// Package memstore provides an in-memory RecordStore for tests, examples,
// and small embedded deployments. All operations run under a single lock, so
// a per-id delete either removes the row or finds it already gone.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/supersavehq/auth"
)

// Store keeps records grouped by collection name.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]auth.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]auth.Record)}
}

func (s *Store) Create(_ context.Context, collection string, record auth.Record) (auth.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.collections[collection]
	if !ok {
		rows = make(map[string]auth.Record)
		s.collections[collection] = rows
	}

	stored := clone(record)
	stored["id"] = uuid.NewString()
	rows[stored["id"].(string)] = stored
	return clone(stored), nil
}

func (s *Store) GetByID(_ context.Context, collection, id string) (auth.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

func (s *Store) QueryRecords(_ context.Context, collection string, query auth.Query) ([]auth.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []auth.Record
	for _, rec := range s.collections[collection] {
		match, err := matches(rec, query)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		out = append(out, clone(rec))
		if query.Limit > 0 && len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, collection string, record auth.Record) error {
	id, _ := record["id"].(string)
	if id == "" {
		return fmt.Errorf("memstore: update requires an id field")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("memstore: unknown collection %q", collection)
	}
	if _, ok := rows[id]; !ok {
		return fmt.Errorf("memstore: no record %s in %q", id, collection)
	}
	rows[id] = clone(record)
	return nil
}

func (s *Store) DeleteByID(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

func matches(rec auth.Record, query auth.Query) (bool, error) {
	for _, f := range query.Filters {
		value, ok := rec[f.Field]
		if !ok {
			return false, nil
		}
		switch f.Op {
		case auth.OpEq:
			if value != f.Value {
				return false, nil
			}
		case auth.OpLt:
			left, lok := asInt64(value)
			right, rok := asInt64(f.Value)
			if !lok || !rok || left >= right {
				return false, nil
			}
		default:
			return false, fmt.Errorf("memstore: unsupported filter op %q", f.Op)
		}
	}
	return true, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func clone(rec auth.Record) auth.Record {
	out := make(auth.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
