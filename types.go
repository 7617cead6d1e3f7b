package auth

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging surface the package depends on. It matches the
// signature used across the goliatone tooling so embedding applications can
// plug their own logger without an adapter.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Record is the raw row representation exchanged with a RecordStore.
type Record map[string]any

// FilterOp is a comparison operator supported by RecordStore queries.
type FilterOp string

const (
	// OpEq matches rows whose field equals the filter value.
	OpEq FilterOp = "eq"
	// OpLt matches rows whose field is strictly less than the filter value.
	OpLt FilterOp = "lt"
)

// Filter is a single field comparison applied to a query.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query describes a filtered record lookup. A Limit of zero means no limit.
type Query struct {
	Filters []Filter
	Limit   int
}

// Eq appends an equality filter and returns the query for chaining.
func (q Query) Eq(field string, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpEq, Value: value})
	return q
}

// Lt appends a less-than filter and returns the query for chaining.
func (q Query) Lt(field string, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpLt, Value: value})
	return q
}

// WithLimit caps the number of returned rows.
func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

// RecordStore is the persistence collaborator the auth engine runs against.
// Implementations generate opaque string identifiers on Create and treat
// per-id deletes as atomic; "row absent" is the single source of truth for
// "already used" during token redemption.
type RecordStore interface {
	// Create persists the record in the named collection and returns it with
	// the store-generated "id" field populated.
	Create(ctx context.Context, collection string, record Record) (Record, error)
	// GetByID returns the record, or nil with no error when it does not exist.
	GetByID(ctx context.Context, collection, id string) (Record, error)
	// QueryRecords returns the records matching every filter in the query.
	QueryRecords(ctx context.Context, collection string, query Query) ([]Record, error)
	// Update replaces the stored record identified by record["id"].
	Update(ctx context.Context, collection string, record Record) error
	// DeleteByID removes the record. Deleting an absent row is not an error.
	DeleteByID(ctx context.Context, collection, id string) error
}

// RateLimiter gates requests before any auth side effect commits. The engine
// performs no limiter bookkeeping itself; implementations own windows and
// counters. The ratelimit package ships redis and in-memory implementations.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// DeliveryFunc hands a generated single-use identifier to the user, typically
// over email. Delivery errors are logged by the engine but never surfaced to
// the requester, so an attacker cannot probe for existing accounts.
type DeliveryFunc func(ctx context.Context, user User, identifier string, expires time.Time) error

// Hooks are lifecycle callbacks fired after auth flows commit. They run
// fire-and-forget: a hook error is logged and never reaches the HTTP response.
type Hooks struct {
	OnRegistration         func(ctx context.Context, user User) error
	OnLogin                func(ctx context.Context, user User) error
	OnRefresh              func(ctx context.Context, user User) error
	OnChangePassword       func(ctx context.Context, user User) error
	OnRequestResetPassword func(ctx context.Context, user User, identifier string, expires time.Time) error
	OnResetPassword        func(ctx context.Context, user User) error
	OnRequestMagicLink     func(ctx context.Context, user User, identifier string, expires time.Time) error
	OnMagicLogin           func(ctx context.Context, user User) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
