package auth

import (
	"context"
)

// usersRepo provides typed access to the user collection through the
// RecordStore contract.
type usersRepo struct {
	store RecordStore
}

func (r usersRepo) getByEmail(ctx context.Context, email string) (*User, error) {
	recs, err := r.store.QueryRecords(ctx, CollectionUsers, Query{}.Eq("email", email).WithLimit(1))
	if err != nil {
		return nil, wrapStoreError(err, "failed to query user by email")
	}
	if len(recs) == 0 {
		return nil, nil
	}
	user := userFromRecord(recs[0])
	return &user, nil
}

func (r usersRepo) getByID(ctx context.Context, id string) (*User, error) {
	rec, err := r.store.GetByID(ctx, CollectionUsers, id)
	if err != nil {
		return nil, wrapStoreError(err, "failed to get user by id")
	}
	if rec == nil {
		return nil, nil
	}
	user := userFromRecord(rec)
	return &user, nil
}

func (r usersRepo) create(ctx context.Context, user User) (*User, error) {
	rec, err := r.store.Create(ctx, CollectionUsers, user.record())
	if err != nil {
		return nil, wrapStoreError(err, "failed to create user")
	}
	created := userFromRecord(rec)
	return &created, nil
}

func (r usersRepo) update(ctx context.Context, user User) error {
	if err := r.store.Update(ctx, CollectionUsers, user.record()); err != nil {
		return wrapStoreError(err, "failed to update user")
	}
	return nil
}

// getOrCreate finds a user by email or provisions one with an empty password
// hash. Such a user can only ever authenticate through a magic link.
func (r usersRepo) getOrCreate(ctx context.Context, email string) (*User, error) {
	user, err := r.getByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := timeInSeconds()
	return r.create(ctx, User{
		Email:       email,
		CreatedAt:   now,
		LastLoginAt: now,
	})
}

// touchLastLogin bumps the user's lastLogin timestamp and persists it.
func (r usersRepo) touchLastLogin(ctx context.Context, user *User) error {
	user.LastLoginAt = timeInSeconds()
	return r.update(ctx, *user)
}
