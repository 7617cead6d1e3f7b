package auth

import (
	"context"
)

// Credentials verifies email/password pairs against stored hashes. The check
// takes the same amount of work whether or not the account exists, so timing
// cannot leak account existence.
type Credentials struct {
	users     usersRepo
	hasher    *PasswordHasher
	dummyHash string
	logger    Logger
}

// NewCredentials builds a verifier. A dummy hash is derived once up front and
// verified against whenever the looked-up user is absent.
func NewCredentials(store RecordStore, hasher *PasswordHasher, logger Logger) (*Credentials, error) {
	if logger == nil {
		logger = defLogger{}
	}
	dummy, err := hasher.Hash("credentials.timing.placeholder")
	if err != nil {
		return nil, err
	}
	return &Credentials{
		users:     usersRepo{store: store},
		hasher:    hasher,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

// Check returns the user when the password matches the stored hash, and
// ErrInvalidCredentials otherwise. "No such account" and "wrong password" are
// deliberately indistinguishable. Missing input is the caller's concern; the
// HTTP layer rejects empty fields before reaching this point.
func (c *Credentials) Check(ctx context.Context, email, password string) (*User, error) {
	c.logger.Debug("password check for %s", anonymizeEmail(email))

	user, err := c.users.getByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn the same verification work as the found-user path.
		if _, err := c.hasher.Verify(password, c.dummyHash); err != nil {
			c.logger.Error("dummy verification failed: %v", err)
		}
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" {
		// Magic-link-provisioned account, no password to match against.
		if _, err := c.hasher.Verify(password, c.dummyHash); err != nil {
			c.logger.Error("dummy verification failed: %v", err)
		}
		return nil, ErrInvalidCredentials
	}

	ok, err := c.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Debug("password hash does not match")
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
