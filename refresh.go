package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"
)

// RefreshTokens manages the persisted, rotating half of a session. The value
// handed to clients is "<row id>_<secret>"; the row stores only the salted
// digest of the secret, so a leaked database cannot be replayed.
type RefreshTokens struct {
	store      RecordStore
	users      usersRepo
	expiration time.Duration
	logger     Logger
}

// NewRefreshTokens creates the refresh token store.
func NewRefreshTokens(store RecordStore, expiration time.Duration, logger Logger) *RefreshTokens {
	if logger == nil {
		logger = defLogger{}
	}
	return &RefreshTokens{
		store:      store,
		users:      usersRepo{store: store},
		expiration: expiration,
		logger:     logger,
	}
}

// Issue creates a fresh refresh token for the user and returns the composite
// client value. When replacing is non-nil the old row is deleted first, which
// is what makes redemption rotate: the presented token dies with the call.
// The delete is best-effort; losing a race with another delete only means the
// row is already gone.
func (r *RefreshTokens) Issue(ctx context.Context, user User, replacing *RefreshToken) (string, error) {
	if replacing != nil {
		if err := r.store.DeleteByID(ctx, CollectionRefreshTokens, replacing.ID); err != nil {
			r.logger.Warn("failed to delete rotated refresh token %s: %v", replacing.ID, err)
		}
	}

	secret, err := randomHex()
	if err != nil {
		return "", err
	}
	salt, err := shortIdentifier()
	if err != nil {
		return "", err
	}

	rec, err := r.store.Create(ctx, CollectionRefreshTokens, RefreshToken{
		UserID:    user.ID,
		ExpiresAt: timeInSeconds() + int64(r.expiration/time.Second),
		TokenHash: saltedDigest(salt, secret),
		TokenSalt: salt,
	}.record())
	if err != nil {
		return "", wrapStoreError(err, "failed to persist refresh token")
	}

	return recString(rec, "id") + compositeSeparator + secret, nil
}

// Redeem validates a presented composite token and returns the owning user
// together with the stored row, which the caller must pass back to Issue to
// complete the rotation. Unknown id, wrong secret, expired row, and vanished
// user all return ErrRefreshTokenInvalid; only the logs know the difference.
// The secret digest is checked before expiry so the two paths cannot be told
// apart from the outside.
func (r *RefreshTokens) Redeem(ctx context.Context, presented string) (*User, *RefreshToken, error) {
	id, secret, found := strings.Cut(presented, compositeSeparator)
	if !found || id == "" || secret == "" {
		r.logger.Debug("presented refresh token did not split into id and secret")
		return nil, nil, ErrRefreshTokenInvalid
	}

	rec, err := r.store.GetByID(ctx, CollectionRefreshTokens, id)
	if err != nil {
		return nil, nil, wrapStoreError(err, "failed to look up refresh token")
	}
	if rec == nil {
		r.logger.Debug("refresh token %s not found", id)
		return nil, nil, ErrRefreshTokenInvalid
	}
	token := refreshTokenFromRecord(rec)

	computed := saltedDigest(token.TokenSalt, secret)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(token.TokenHash)) != 1 {
		r.logger.Debug("refresh token %s digest mismatch", id)
		return nil, nil, ErrRefreshTokenInvalid
	}

	if token.ExpiresAt < timeInSeconds() {
		r.logger.Debug("refresh token %s for user %s is expired", id, token.UserID)
		if err := r.store.DeleteByID(ctx, CollectionRefreshTokens, id); err != nil {
			r.logger.Warn("failed to delete expired refresh token %s: %v", id, err)
		}
		return nil, nil, ErrRefreshTokenInvalid
	}

	user, err := r.users.getByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		r.logger.Debug("user %s linked to refresh token no longer exists", token.UserID)
		return nil, nil, ErrRefreshTokenInvalid
	}

	return user, &token, nil
}

// RevokeAll deletes every refresh token owned by the user, ending all of
// their sessions. Called on password change, password reset, and logout-all.
func (r *RefreshTokens) RevokeAll(ctx context.Context, userID string) error {
	recs, err := r.store.QueryRecords(ctx, CollectionRefreshTokens, Query{}.Eq("userId", userID))
	if err != nil {
		return wrapStoreError(err, "failed to list refresh tokens for revocation")
	}
	for _, rec := range recs {
		if err := r.store.DeleteByID(ctx, CollectionRefreshTokens, recString(rec, "id")); err != nil {
			return wrapStoreError(err, "failed to delete refresh token during revocation")
		}
	}
	return nil
}
