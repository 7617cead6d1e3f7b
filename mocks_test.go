package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// fakeStore is a minimal in-memory RecordStore for unit tests. Errors can be
// injected per method name to exercise failure paths.
type fakeStore struct {
	mu          sync.Mutex
	seq         int
	collections map[string]map[string]Record
	failures    map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]map[string]Record),
		failures:    make(map[string]error),
	}
}

func (s *fakeStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *fakeStore) injected(method string) error {
	return s.failures[method]
}

func (s *fakeStore) Create(_ context.Context, collection string, record Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("create"); err != nil {
		return nil, err
	}

	rows, ok := s.collections[collection]
	if !ok {
		rows = make(map[string]Record)
		s.collections[collection] = rows
	}

	s.seq++
	stored := cloneRecord(record)
	stored["id"] = "rec-" + strconv.Itoa(s.seq)
	rows[stored["id"].(string)] = stored
	return cloneRecord(stored), nil
}

func (s *fakeStore) GetByID(_ context.Context, collection, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("getById"); err != nil {
		return nil, err
	}

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *fakeStore) QueryRecords(_ context.Context, collection string, query Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("query"); err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range s.collections[collection] {
		if !recordMatches(rec, query) {
			continue
		}
		out = append(out, cloneRecord(rec))
		if query.Limit > 0 && len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, collection string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("update"); err != nil {
		return err
	}

	id, _ := record["id"].(string)
	rows := s.collections[collection]
	if _, ok := rows[id]; !ok {
		return fmt.Errorf("no record %s in %s", id, collection)
	}
	rows[id] = cloneRecord(record)
	return nil
}

func (s *fakeStore) DeleteByID(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("delete"); err != nil {
		return err
	}

	delete(s.collections[collection], id)
	return nil
}

func (s *fakeStore) count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func recordMatches(rec Record, query Query) bool {
	for _, f := range query.Filters {
		value, ok := rec[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if value != f.Value {
				return false
			}
		case OpLt:
			left, lok := value.(int64)
			right, rok := f.Value.(int64)
			if !lok || !rok || left >= right {
				return false
			}
		}
	}
	return true
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// testHasher runs far fewer rounds than production so tests stay fast.
func testHasher() *PasswordHasher {
	return &PasswordHasher{iterations: 10, keyLength: 32, saltLength: 16}
}

// seedUser creates a user with the given password directly in the store.
func seedUser(s *fakeStore, email, password string) User {
	hash, err := testHasher().Hash(password)
	if err != nil {
		panic(err)
	}
	now := timeInSeconds()
	rec, err := s.Create(context.Background(), CollectionUsers, User{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		LastLoginAt:  now,
	}.record())
	if err != nil {
		panic(err)
	}
	return userFromRecord(rec)
}

// limiterFunc adapts a function to the RateLimiter interface.
type limiterFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

func (f limiterFunc) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f(ctx, key, limit, window)
}

func allowAll(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func denyAll(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}
