package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"
)

// MagicLinks implements passwordless login. The requester receives an opaque
// "id_secret" credential through the delivery callback; only a salted digest
// of the secret is stored, so a leaked database cannot be replayed into a
// session.
type MagicLinks struct {
	store      RecordStore
	users      usersRepo
	expiration time.Duration
	deliver    DeliveryFunc
	logger     Logger
}

// NewMagicLinks creates the magic link store.
func NewMagicLinks(store RecordStore, expiration time.Duration, deliver DeliveryFunc, logger Logger) *MagicLinks {
	if logger == nil {
		logger = defLogger{}
	}
	return &MagicLinks{
		store:      store,
		users:      usersRepo{store: store},
		expiration: expiration,
		deliver:    deliver,
		logger:     logger,
	}
}

// Request issues a magic login credential for email, creating the account on
// first contact. The full credential only ever exists in the delivery
// callback's arguments.
func (m *MagicLinks) Request(ctx context.Context, email string) (*User, string, time.Time, error) {
	user, err := m.users.getOrCreate(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	secret, err := randomHex()
	if err != nil {
		return nil, "", time.Time{}, err
	}
	salt, err := shortIdentifier()
	if err != nil {
		return nil, "", time.Time{}, err
	}

	expires := time.Now().Add(m.expiration)
	rec, err := m.store.Create(ctx, CollectionMagicLoginTokens, MagicLoginToken{
		UserID:         user.ID,
		Expires:        expires.Unix(),
		IdentifierHash: saltedDigest(salt, secret),
		IdentifierSalt: salt,
	}.record())
	if err != nil {
		return nil, "", time.Time{}, wrapStoreError(err, "failed to persist magic login token")
	}

	identifier := recString(rec, "id") + compositeSeparator + secret
	if m.deliver != nil {
		if err := m.deliver(ctx, *user, identifier, expires); err != nil {
			m.logger.Error("magic link delivery failed for user %s: %v", user.ID, err)
		}
	}

	return user, identifier, expires, nil
}

// Consume redeems a magic login credential. The digest comparison runs before
// the expiry check and every failure mode returns ErrMagicLinkInvalid, so a
// caller learns nothing about which step rejected the credential. The token
// row is deleted before the user is returned: a credential is good for one
// login, even against a concurrent duplicate request.
func (m *MagicLinks) Consume(ctx context.Context, presented string) (*User, error) {
	id, secret, found := strings.Cut(presented, compositeSeparator)
	if !found || id == "" || secret == "" {
		m.logger.Debug("malformed magic login credential")
		return nil, ErrMagicLinkInvalid
	}

	rec, err := m.store.GetByID(ctx, CollectionMagicLoginTokens, id)
	if err != nil {
		return nil, wrapStoreError(err, "failed to look up magic login token")
	}
	if rec == nil {
		m.logger.Debug("magic login token %s not found", id)
		return nil, ErrMagicLinkInvalid
	}
	token := magicLoginTokenFromRecord(rec)

	digest := saltedDigest(token.IdentifierSalt, secret)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(token.IdentifierHash)) != 1 {
		m.logger.Debug("magic login token %s digest mismatch", id)
		return nil, ErrMagicLinkInvalid
	}

	if token.Expires < timeInSeconds() {
		m.logger.Debug("magic login token %s is expired", id)
		if err := m.store.DeleteByID(ctx, CollectionMagicLoginTokens, id); err != nil {
			m.logger.Warn("failed to delete expired magic login token %s: %v", id, err)
		}
		return nil, ErrMagicLinkInvalid
	}

	// Single use. Delete before anything downstream can succeed.
	if err := m.store.DeleteByID(ctx, CollectionMagicLoginTokens, id); err != nil {
		return nil, wrapStoreError(err, "failed to delete consumed magic login token")
	}

	user, err := m.users.getByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		m.logger.Debug("user %s behind magic login token no longer exists", token.UserID)
		return nil, ErrMagicLinkInvalid
	}

	if err := m.users.touchLastLogin(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// sweepExpired removes every magic login token whose expiry has passed.
func (m *MagicLinks) sweepExpired(ctx context.Context) {
	recs, err := m.store.QueryRecords(ctx, CollectionMagicLoginTokens, Query{}.Lt("expires", timeInSeconds()))
	if err != nil {
		m.logger.Warn("magic login token sweep query failed: %v", err)
		return
	}
	for _, rec := range recs {
		if err := m.store.DeleteByID(ctx, CollectionMagicLoginTokens, recString(rec, "id")); err != nil {
			m.logger.Warn("magic login token sweep delete failed: %v", err)
		}
	}
}
