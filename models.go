package auth

import (
	"time"
)

// Collection names use a dedicated prefix so the auth tables never collide
// with the embedding application's own collections.
const (
	CollectionUsers            = "authuser"
	CollectionRefreshTokens    = "authrefreshtoken"
	CollectionResetTokens      = "authresettoken"
	CollectionMagicLoginTokens = "authmagiclogintoken"
)

// User is an authenticated account. A user provisioned through a magic link
// carries an empty PasswordHash and can never pass the credential check.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"createdAt"`
	LastLoginAt  int64  `json:"lastLoginAt"`
}

// RefreshToken is the persisted half of a rotating session credential. The
// client holds "id_secret"; only the salted digest of the secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt int64
	TokenHash string
	TokenSalt string
}

// ResetPasswordToken is a single-use password reset credential. At most one
// live row exists per user.
type ResetPasswordToken struct {
	ID         string
	Identifier string
	Expires    int64
	UserID     string
}

// MagicLoginToken is a single-use passwordless login credential, stored with
// the same salted-digest-at-rest scheme as refresh tokens.
type MagicLoginToken struct {
	ID             string
	UserID         string
	Expires        int64
	IdentifierHash string
	IdentifierSalt string
}

// Tokens is the transient pair returned by every successful auth flow. It is
// never persisted as a unit.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func timeInSeconds(ts ...time.Time) int64 {
	if len(ts) > 0 {
		return ts[0].Unix()
	}
	return time.Now().Unix()
}

// anonymizeEmail redacts the local part of an address for logging; logs never
// carry full addresses.
func anonymizeEmail(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			if i <= 1 {
				return "*" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return "***"
}

func (u User) record() Record {
	rec := Record{
		"email":     u.Email,
		"password":  u.PasswordHash,
		"created":   u.CreatedAt,
		"lastLogin": u.LastLoginAt,
	}
	if u.Name != "" {
		rec["name"] = u.Name
	}
	if u.ID != "" {
		rec["id"] = u.ID
	}
	return rec
}

func userFromRecord(rec Record) User {
	return User{
		ID:           recString(rec, "id"),
		Email:        recString(rec, "email"),
		Name:         recString(rec, "name"),
		PasswordHash: recString(rec, "password"),
		CreatedAt:    recInt64(rec, "created"),
		LastLoginAt:  recInt64(rec, "lastLogin"),
	}
}

func (t RefreshToken) record() Record {
	rec := Record{
		"userId":    t.UserID,
		"expiresAt": t.ExpiresAt,
		"tokenHash": t.TokenHash,
		"tokenSalt": t.TokenSalt,
	}
	if t.ID != "" {
		rec["id"] = t.ID
	}
	return rec
}

func refreshTokenFromRecord(rec Record) RefreshToken {
	return RefreshToken{
		ID:        recString(rec, "id"),
		UserID:    recString(rec, "userId"),
		ExpiresAt: recInt64(rec, "expiresAt"),
		TokenHash: recString(rec, "tokenHash"),
		TokenSalt: recString(rec, "tokenSalt"),
	}
}

func (t ResetPasswordToken) record() Record {
	rec := Record{
		"identifier": t.Identifier,
		"expires":    t.Expires,
		"userId":     t.UserID,
	}
	if t.ID != "" {
		rec["id"] = t.ID
	}
	return rec
}

func resetTokenFromRecord(rec Record) ResetPasswordToken {
	return ResetPasswordToken{
		ID:         recString(rec, "id"),
		Identifier: recString(rec, "identifier"),
		Expires:    recInt64(rec, "expires"),
		UserID:     recString(rec, "userId"),
	}
}

func (t MagicLoginToken) record() Record {
	rec := Record{
		"userId":         t.UserID,
		"expires":        t.Expires,
		"identifierHash": t.IdentifierHash,
		"identifierSalt": t.IdentifierSalt,
	}
	if t.ID != "" {
		rec["id"] = t.ID
	}
	return rec
}

func magicLoginTokenFromRecord(rec Record) MagicLoginToken {
	return MagicLoginToken{
		ID:             recString(rec, "id"),
		UserID:         recString(rec, "userId"),
		Expires:        recInt64(rec, "expires"),
		IdentifierHash: recString(rec, "identifierHash"),
		IdentifierSalt: recString(rec, "identifierSalt"),
	}
}

func recString(rec Record, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

func recInt64(rec Record, key string) int64 {
	switch v := rec[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
