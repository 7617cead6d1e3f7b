package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ResetTokens manages single-use password reset credentials. A user has at
// most one live token: requesting a new one deletes the previous row first.
type ResetTokens struct {
	store      RecordStore
	users      usersRepo
	hasher     *PasswordHasher
	refresh    *RefreshTokens
	expiration time.Duration
	deliver    DeliveryFunc
	logger     Logger
}

// NewResetTokens creates the reset token store.
func NewResetTokens(store RecordStore, hasher *PasswordHasher, refresh *RefreshTokens, expiration time.Duration, deliver DeliveryFunc, logger Logger) *ResetTokens {
	if logger == nil {
		logger = defLogger{}
	}
	return &ResetTokens{
		store:      store,
		users:      usersRepo{store: store},
		hasher:     hasher,
		refresh:    refresh,
		expiration: expiration,
		deliver:    deliver,
		logger:     logger,
	}
}

// Request creates a reset token for the account behind email and invokes the
// delivery callback. When no account matches it returns (nil, "", zero, nil):
// the transport layer responds identically either way so the endpoint cannot
// be used to enumerate accounts. Delivery failures are logged, not retried,
// and never surfaced to the requester.
func (s *ResetTokens) Request(ctx context.Context, email string) (*User, string, time.Time, error) {
	user, err := s.users.getByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		s.logger.Debug("no account for %s, reset request ignored", anonymizeEmail(email))
		return nil, "", time.Time{}, nil
	}

	identifier, err := shortIdentifier()
	if err != nil {
		return nil, "", time.Time{}, err
	}

	// Single live token per user: drop any existing one before creating.
	existing, err := s.store.QueryRecords(ctx, CollectionResetTokens, Query{}.Eq("userId", user.ID))
	if err != nil {
		return nil, "", time.Time{}, wrapStoreError(err, "failed to query existing reset tokens")
	}
	for _, rec := range existing {
		s.logger.Debug("removing existing reset token for user %s", user.ID)
		if err := s.store.DeleteByID(ctx, CollectionResetTokens, recString(rec, "id")); err != nil {
			return nil, "", time.Time{}, wrapStoreError(err, "failed to delete existing reset token")
		}
	}

	expires := time.Now().Add(s.expiration)
	_, err = s.store.Create(ctx, CollectionResetTokens, ResetPasswordToken{
		Identifier: identifier,
		Expires:    expires.Unix(),
		UserID:     user.ID,
	}.record())
	if err != nil {
		return nil, "", time.Time{}, wrapStoreError(err, "failed to persist reset token")
	}

	if s.deliver != nil {
		if err := s.deliver(ctx, *user, identifier, expires); err != nil {
			s.logger.Error("reset token delivery failed for user %s: %v", user.ID, err)
		}
	}

	return user, identifier, expires, nil
}

// Consume redeems a reset token: the user's password is replaced, the token
// deleted, and every refresh token for that user revoked so all existing
// sessions die with the old password. Unknown and expired tokens both return
// ErrResetTokenInvalid.
func (s *ResetTokens) Consume(ctx context.Context, identifier, newPassword string) (*User, error) {
	recs, err := s.store.QueryRecords(ctx, CollectionResetTokens, Query{}.Eq("identifier", identifier).WithLimit(1))
	if err != nil {
		return nil, wrapStoreError(err, "failed to look up reset token")
	}
	if len(recs) == 0 {
		s.logger.Debug("reset token not found")
		return nil, ErrResetTokenInvalid
	}
	token := resetTokenFromRecord(recs[0])

	if token.Expires < timeInSeconds() {
		s.logger.Debug("reset token for user %s is expired", token.UserID)
		if err := s.store.DeleteByID(ctx, CollectionResetTokens, token.ID); err != nil {
			s.logger.Warn("failed to delete expired reset token %s: %v", token.ID, err)
		}
		return nil, ErrResetTokenInvalid
	}

	user, err := s.users.getByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, goerrors.New("user linked to reset token no longer exists", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"user_id": token.UserID})
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.LastLoginAt = timeInSeconds()
	if err := s.users.update(ctx, *user); err != nil {
		return nil, err
	}

	if err := s.store.DeleteByID(ctx, CollectionResetTokens, token.ID); err != nil {
		return nil, wrapStoreError(err, "failed to delete consumed reset token")
	}

	// Security-critical: the password change invalidates every session.
	if err := s.refresh.RevokeAll(ctx, user.ID); err != nil {
		return nil, err
	}

	return user, nil
}

// sweepExpired removes every reset token whose expiry has passed.
func (s *ResetTokens) sweepExpired(ctx context.Context) {
	recs, err := s.store.QueryRecords(ctx, CollectionResetTokens, Query{}.Lt("expires", timeInSeconds()))
	if err != nil {
		s.logger.Warn("reset token sweep query failed: %v", err)
		return
	}
	for _, rec := range recs {
		if err := s.store.DeleteByID(ctx, CollectionResetTokens, recString(rec, "id")); err != nil {
			s.logger.Warn("reset token sweep delete failed: %v", err)
		}
	}
}
