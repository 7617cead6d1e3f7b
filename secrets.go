package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

const (
	secretByteLength      = 64
	shortIdentifierLength = 32

	// compositeSeparator joins salt and secret before digesting, and token id
	// and secret in the value handed to clients. Neither component contains it.
	compositeSeparator = "_"
)

// randomHex returns a fresh high-entropy secret, hex encoded.
func randomHex() (string, error) {
	buf := make([]byte, secretByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes")
	}
	return hex.EncodeToString(buf), nil
}

// shortIdentifier returns a short opaque id: the leading 32 hex characters of
// a fresh random secret. Used where a compact public identifier is needed,
// never as the secret component itself.
func shortIdentifier() (string, error) {
	s, err := randomHex()
	if err != nil {
		return "", err
	}
	return s[:shortIdentifierLength], nil
}

// digest is a fast, unsalted one-way digest used to compare already-salted
// salt+secret composites at rest. It is never used on bare passwords.
func digest(composite string) string {
	sum := sha256.Sum256([]byte(composite))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// saltedDigest hashes a secret under a salt for at-rest storage. The salt is
// not itself secret; it defeats reuse of precomputed digests across rows.
func saltedDigest(salt, secret string) string {
	return digest(salt + compositeSeparator + secret)
}
