package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Algorithm  = "pbkdf2"
	pbkdf2Iterations = 15_000
	pbkdf2KeyLength  = 64
	pbkdf2SaltLength = 64
)

// ErrHashFormat reports a stored password hash that cannot be parsed; it is
// distinct from a failed verification so corrupt rows are not mistaken for
// wrong passwords.
var ErrHashFormat = goerrors.New("stored password hash is not formatted correctly", goerrors.CategoryInternal).
	WithTextCode("HASH_FORMAT")

// PasswordHasher derives salted PBKDF2 password hashes in the self-describing
// format "pbkdf2$<iterations>$<cipher hex>$<salt hex>". Two hashes of the same
// input never match because every call draws a fresh salt.
type PasswordHasher struct {
	iterations int
	keyLength  int
	saltLength int
}

// NewPasswordHasher returns a hasher with the fixed production parameters.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		iterations: pbkdf2Iterations,
		keyLength:  pbkdf2KeyLength,
		saltLength: pbkdf2SaltLength,
	}
}

// Hash derives a one-way hash of plaintext with a random per-call salt.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password salt")
	}

	key := pbkdf2.Key([]byte(plaintext), salt, h.iterations, h.keyLength, sha512.New)

	var b strings.Builder
	b.WriteString(pbkdf2Algorithm)
	b.WriteByte('$')
	b.WriteString(strconv.Itoa(h.iterations))
	b.WriteByte('$')
	b.WriteString(hex.EncodeToString(key))
	b.WriteByte('$')
	b.WriteString(hex.EncodeToString(salt))
	return b.String(), nil
}

// Verify recomputes the derivation described by stored and compares it to
// plaintext in constant time. A malformed stored value yields ErrHashFormat,
// never a silent false.
func (h *PasswordHasher) Verify(plaintext, stored string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[2] == "" || parts[3] == "" {
		return false, ErrHashFormat
	}
	if parts[0] != pbkdf2Algorithm {
		return false, goerrors.New("unrecognized password hash algorithm", goerrors.CategoryInternal).
			WithTextCode("HASH_ALGORITHM").
			WithMetadata(map[string]any{"algorithm": parts[0]})
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false, ErrHashFormat
	}

	cipher, err := hex.DecodeString(parts[2])
	if err != nil {
		return false, ErrHashFormat
	}
	salt, err := hex.DecodeString(parts[3])
	if err != nil {
		return false, ErrHashFormat
	}

	key := pbkdf2.Key([]byte(plaintext), salt, iterations, len(cipher), sha512.New)
	return subtle.ConstantTimeCompare(key, cipher) == 1, nil
}
