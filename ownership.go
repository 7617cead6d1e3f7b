package auth

import (
	"context"
)

// OwnerField is the record key encode functions must store the owner id
// under. Query injects its owner filter on this key.
const OwnerField = "userId"

// Owned is implemented by entity types whose rows belong to a single user.
// SetOwnerID("") must clear the owner field; pair it with an omitempty JSON
// tag so the owner never leaks to clients.
type Owned interface {
	OwnerID() string
	SetOwnerID(id string)
}

// RelatedOwned is optionally implemented by Owned types that embed other
// owned entities. Related() returns the direct children so their owner
// fields can be stripped alongside the parent's. Only one level is walked.
type RelatedOwned interface {
	Owned
	Related() []Owned
}

// CollectionHooks carries optional application hooks for a collection. They
// run after the built-in ownership enforcement, so a hook never sees a row
// the caller does not own.
type CollectionHooks[T Owned] struct {
	PreCreate  func(ctx context.Context, userID string, entity T) error
	PreUpdate  func(ctx context.Context, userID string, entity T) error
	PreDelete  func(ctx context.Context, userID string, entity T) error
	PostRead   func(ctx context.Context, userID string, entity T) error
	PreQuery   func(ctx context.Context, userID string, query *Query) error
}

// OwnedCollection scopes every operation on a collection to the calling
// user. Reads of rows owned by someone else fail exactly like reads of rows
// that do not exist, and the owner field is stripped from everything
// returned.
type OwnedCollection[T Owned] struct {
	name   string
	store  RecordStore
	hooks  CollectionHooks[T]
	encode func(T) Record
	decode func(Record) (T, error)
	logger Logger
}

// NewOwnedCollection wires a collection into the ownership layer. encode and
// decode translate between the entity type and the Record Store's map rows.
func NewOwnedCollection[T Owned](name string, store RecordStore, encode func(T) Record, decode func(Record) (T, error), hooks CollectionHooks[T], logger Logger) *OwnedCollection[T] {
	if logger == nil {
		logger = defLogger{}
	}
	return &OwnedCollection[T]{
		name:   name,
		store:  store,
		hooks:  hooks,
		encode: encode,
		decode: decode,
		logger: logger,
	}
}

// subject resolves the calling user from ctx.
func subject(ctx context.Context) (string, error) {
	userID, ok := SubjectFromContext(ctx)
	if !ok || userID == "" {
		return "", ErrNoSubject
	}
	return userID, nil
}

// strip clears the owner field on entity and one level of related entities.
func strip[T Owned](entity T) {
	entity.SetOwnerID("")
	if rel, ok := Owned(entity).(RelatedOwned); ok {
		for _, child := range rel.Related() {
			if child != nil {
				child.SetOwnerID("")
			}
		}
	}
}

// Create persists entity owned by the calling user. Any owner value already
// present on the entity is overwritten, so a client cannot create rows on
// behalf of another user.
func (c *OwnedCollection[T]) Create(ctx context.Context, entity T) (string, error) {
	userID, err := subject(ctx)
	if err != nil {
		return "", err
	}

	entity.SetOwnerID(userID)
	if c.hooks.PreCreate != nil {
		if err := c.hooks.PreCreate(ctx, userID, entity); err != nil {
			return "", err
		}
	}

	rec, err := c.store.Create(ctx, c.name, c.encode(entity))
	if err != nil {
		return "", wrapStoreError(err, "failed to create record")
	}
	return recString(rec, "id"), nil
}

// Get returns the entity behind id when the calling user owns it. A row
// owned by someone else is indistinguishable from a row that does not exist:
// both return ErrNotOwner.
func (c *OwnedCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T

	userID, err := subject(ctx)
	if err != nil {
		return zero, err
	}

	rec, err := c.store.GetByID(ctx, c.name, id)
	if err != nil {
		return zero, wrapStoreError(err, "failed to fetch record")
	}
	if rec == nil {
		return zero, ErrNotOwner
	}

	entity, err := c.decode(rec)
	if err != nil {
		return zero, err
	}
	if entity.OwnerID() != userID {
		c.logger.Debug("user %s denied access to %s/%s", userID, c.name, id)
		return zero, ErrNotOwner
	}

	if c.hooks.PostRead != nil {
		if err := c.hooks.PostRead(ctx, userID, entity); err != nil {
			return zero, err
		}
	}

	strip(entity)
	return entity, nil
}

// Query lists the calling user's rows. An owner filter is injected into the
// query before it reaches the store, so rows of other users are never read.
func (c *OwnedCollection[T]) Query(ctx context.Context, query Query) ([]T, error) {
	userID, err := subject(ctx)
	if err != nil {
		return nil, err
	}

	query = query.Eq(OwnerField, userID)
	if c.hooks.PreQuery != nil {
		if err := c.hooks.PreQuery(ctx, userID, &query); err != nil {
			return nil, err
		}
	}

	recs, err := c.store.QueryRecords(ctx, c.name, query)
	if err != nil {
		return nil, wrapStoreError(err, "failed to query records")
	}

	entities := make([]T, 0, len(recs))
	for _, rec := range recs {
		entity, err := c.decode(rec)
		if err != nil {
			return nil, err
		}
		if c.hooks.PostRead != nil {
			if err := c.hooks.PostRead(ctx, userID, entity); err != nil {
				return nil, err
			}
		}
		strip(entity)
		entities = append(entities, entity)
	}
	return entities, nil
}

// Update replaces the row behind id after verifying the calling user owns
// the stored version. The owner on the incoming entity is overwritten, so an
// update can never move a row to another user.
func (c *OwnedCollection[T]) Update(ctx context.Context, id string, entity T) error {
	userID, err := subject(ctx)
	if err != nil {
		return err
	}

	if err := c.assertOwner(ctx, userID, id); err != nil {
		return err
	}

	entity.SetOwnerID(userID)
	if c.hooks.PreUpdate != nil {
		if err := c.hooks.PreUpdate(ctx, userID, entity); err != nil {
			return err
		}
	}

	rec := c.encode(entity)
	rec["id"] = id
	if err := c.store.Update(ctx, c.name, rec); err != nil {
		return wrapStoreError(err, "failed to update record")
	}
	return nil
}

// Delete removes the row behind id when the calling user owns it.
func (c *OwnedCollection[T]) Delete(ctx context.Context, id string) error {
	userID, err := subject(ctx)
	if err != nil {
		return err
	}

	rec, err := c.store.GetByID(ctx, c.name, id)
	if err != nil {
		return wrapStoreError(err, "failed to fetch record")
	}
	if rec == nil {
		return ErrNotOwner
	}
	entity, err := c.decode(rec)
	if err != nil {
		return err
	}
	if entity.OwnerID() != userID {
		c.logger.Debug("user %s denied delete of %s/%s", userID, c.name, id)
		return ErrNotOwner
	}

	if c.hooks.PreDelete != nil {
		if err := c.hooks.PreDelete(ctx, userID, entity); err != nil {
			return err
		}
	}

	if err := c.store.DeleteByID(ctx, c.name, id); err != nil {
		return wrapStoreError(err, "failed to delete record")
	}
	return nil
}

func (c *OwnedCollection[T]) assertOwner(ctx context.Context, userID, id string) error {
	rec, err := c.store.GetByID(ctx, c.name, id)
	if err != nil {
		return wrapStoreError(err, "failed to fetch record")
	}
	if rec == nil {
		return ErrNotOwner
	}
	entity, err := c.decode(rec)
	if err != nil {
		return err
	}
	if entity.OwnerID() != userID {
		c.logger.Debug("user %s denied access to %s/%s", userID, c.name, id)
		return ErrNotOwner
	}
	return nil
}

// AddCollection wires a collection into a's ownership layer, using the
// engine's store and logger. A package function rather than a method because
// methods cannot introduce type parameters.
func AddCollection[T Owned](a *Auth, name string, encode func(T) Record, decode func(Record) (T, error), hooks CollectionHooks[T]) *OwnedCollection[T] {
	return NewOwnedCollection(name, a.store, encode, decode, hooks, a.logger)
}
