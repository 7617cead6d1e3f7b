package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService issues and verifies the short-lived signed access tokens.
// Tokens are stateless: verification consults no storage, and revocation is
// achieved by expiry plus refresh token invalidation.
type TokenService struct {
	signingKey []byte
	method     jwt.SigningMethod
	expiration time.Duration
	logger     Logger
}

// NewTokenService creates a token service for the configured HMAC algorithm.
func NewTokenService(secret string, algorithm string, expiration time.Duration, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey: []byte(secret),
		method:     jwt.GetSigningMethod(algorithm),
		expiration: expiration,
		logger:     logger,
	}
}

// Issue signs a token carrying the subject, expiring at now+TTL.
func (ts *TokenService) Issue(subject string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
	}

	signed, err := jwt.NewWithClaims(ts.method, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}
	return signed, nil
}

// Verify parses and validates a signed token, returning its subject. Bad
// signature, wrong algorithm, malformed structure, and expiry all collapse
// into ErrTokenInvalid; the reason is only logged.
func (ts *TokenService) Verify(tokenString string, now time.Time) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{ts.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &jwt.RegisteredClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	})
	if err != nil {
		ts.logger.Debug("access token rejected: %v", err)
		return "", ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		ts.logger.Debug("access token carried no usable subject")
		return "", ErrTokenInvalid
	}

	return claims.Subject, nil
}
