package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidCredentials is returned when an email/password pair does not match.
// A missing account and a wrong password intentionally collapse into this one
// value so the caller cannot distinguish them.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid covers bad signature, malformed structure, and expiry of
// access tokens. The middleware renders all of them identically.
var ErrTokenInvalid = goerrors.New("invalid authentication token", goerrors.CategoryAuth).
	WithTextCode("TOKEN_INVALID").
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshTokenInvalid is the uniform redemption failure: unknown id, hash
// mismatch, and expired row all render the same externally. The specific
// reason only appears in logs.
var ErrRefreshTokenInvalid = goerrors.New("refresh token was not accepted", goerrors.CategoryAuth).
	WithTextCode("REFRESH_INVALID").
	WithCode(goerrors.CodeUnauthorized)

// ErrResetTokenInvalid is returned when a password reset token is unknown,
// already consumed, or expired.
var ErrResetTokenInvalid = goerrors.New("reset token is invalid or expired", goerrors.CategoryAuth).
	WithTextCode("INVALID_TOKEN").
	WithCode(goerrors.CodeUnauthorized)

// ErrMagicLinkInvalid is the uniform magic-login failure; wrong secret,
// expired link, and unknown id are indistinguishable to the caller.
var ErrMagicLinkInvalid = goerrors.New("magic login identifier was not accepted", goerrors.CategoryAuth).
	WithTextCode("MAGIC_LINK_INVALID").
	WithCode(goerrors.CodeUnauthorized)

// ErrNoSubject is raised by ownership hooks when no authenticated subject is
// present in the context. It aborts the record operation.
var ErrNoSubject = goerrors.New("could not process request", goerrors.CategoryAuth).
	WithTextCode("NO_SUBJECT").
	WithCode(goerrors.CodeUnauthorized)

// ErrNotOwner is raised by ownership hooks when an entity belongs to a
// different user than the authenticated subject.
var ErrNotOwner = goerrors.New("not authorized", goerrors.CategoryAuth).
	WithTextCode("NOT_OWNER").
	WithCode(goerrors.CodeUnauthorized)

// IsAuthFailure reports whether err belongs to the authentication failure
// taxonomy, i.e. should render as a generic unauthorized response.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryAuth
	}
	return false
}

func wrapStoreError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
