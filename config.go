package auth

import (
	"regexp"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenAlgorithm signs access tokens unless overridden.
	DefaultTokenAlgorithm = "HS512"
	// DefaultAccessTokenExpiration keeps the stateless token window short.
	DefaultAccessTokenExpiration = 5 * time.Minute
	// DefaultRefreshTokenExpiration is three months, matching the persisted
	// session length most embedding products expect.
	DefaultRefreshTokenExpiration = 90 * 24 * time.Hour
	// DefaultResetTokenExpiration bounds password reset links.
	DefaultResetTokenExpiration = time.Hour
	// DefaultMagicLinkExpiration bounds magic login links.
	DefaultMagicLinkExpiration = 30 * time.Minute
	// DefaultCleanupInterval is the expiry sweep cadence.
	DefaultCleanupInterval = time.Minute
)

// RateWindow is a single request budget: at most Max requests per Window.
type RateWindow struct {
	Max    int
	Window time.Duration
}

// DefaultGeneralRateWindow throttles every auth route by client address.
var DefaultGeneralRateWindow = RateWindow{Max: 5, Window: 30 * time.Second}

// DefaultIdentifierRateWindow throttles sensitive routes by the identifier
// carried in the request body (email, token, magic identifier).
var DefaultIdentifierRateWindow = RateWindow{Max: 5, Window: time.Minute}

// RateLimitConfig wires a RateLimiter collaborator into the HTTP surface.
// A nil RateLimitConfig on Config disables throttling entirely.
type RateLimitConfig struct {
	Limiter    RateLimiter
	General    RateWindow
	Identifier RateWindow
}

// LocalPasswordConfig enables the email/password method and its reset flow.
type LocalPasswordConfig struct {
	// ResetTokenExpiration defaults to DefaultResetTokenExpiration.
	ResetTokenExpiration time.Duration
	// DeliverResetToken hands the reset identifier to the user. Required.
	DeliverResetToken DeliveryFunc
}

// MagicLinkConfig enables passwordless magic-link login.
type MagicLinkConfig struct {
	// Expiration defaults to DefaultMagicLinkExpiration.
	Expiration time.Duration
	// DeliverIdentifier hands the login identifier to the user. Required.
	DeliverIdentifier DeliveryFunc
}

// Config holds every recognized option. Zero values fall back to defaults in
// setDefaults; Validate rejects inconsistent combinations before any route is
// registered.
type Config struct {
	// TokenSecret signs access tokens. Required.
	TokenSecret string
	// TokenAlgorithm is an HMAC JWT algorithm name (HS256, HS384, HS512).
	TokenAlgorithm string

	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration

	// NotSecuredEndpoints lists path patterns exempt from the authentication
	// middleware; everything else requires a bearer token. Mutually exclusive
	// with SecuredEndpoints.
	NotSecuredEndpoints []*regexp.Regexp
	// SecuredEndpoints inverts the policy: only matching paths require a
	// bearer token.
	SecuredEndpoints []*regexp.Regexp

	LocalPassword *LocalPasswordConfig
	MagicLink     *MagicLinkConfig

	RateLimit *RateLimitConfig

	Hooks Hooks

	CleanupInterval time.Duration

	Logger Logger
}

func (c *Config) setDefaults() {
	if c.TokenAlgorithm == "" {
		c.TokenAlgorithm = DefaultTokenAlgorithm
	}
	if c.AccessTokenExpiration == 0 {
		c.AccessTokenExpiration = DefaultAccessTokenExpiration
	}
	if c.RefreshTokenExpiration == 0 {
		c.RefreshTokenExpiration = DefaultRefreshTokenExpiration
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Logger == nil {
		c.Logger = defLogger{}
	}
	if c.LocalPassword != nil && c.LocalPassword.ResetTokenExpiration == 0 {
		c.LocalPassword.ResetTokenExpiration = DefaultResetTokenExpiration
	}
	if c.MagicLink != nil && c.MagicLink.Expiration == 0 {
		c.MagicLink.Expiration = DefaultMagicLinkExpiration
	}
	if c.RateLimit != nil {
		if c.RateLimit.General == (RateWindow{}) {
			c.RateLimit.General = DefaultGeneralRateWindow
		}
		if c.RateLimit.Identifier == (RateWindow{}) {
			c.RateLimit.Identifier = DefaultIdentifierRateWindow
		}
	}
}

// Validate checks the configuration eagerly so misconfiguration surfaces at
// startup instead of on the first request.
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return configError("no token secret is defined")
	}
	if method := jwt.GetSigningMethod(c.TokenAlgorithm); method == nil {
		return configError("unknown token algorithm").
			WithMetadata(map[string]any{"algorithm": c.TokenAlgorithm})
	} else if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return configError("token algorithm must be an HMAC variant").
			WithMetadata(map[string]any{"algorithm": c.TokenAlgorithm})
	}
	if len(c.NotSecuredEndpoints) > 0 && len(c.SecuredEndpoints) > 0 {
		return configError("NotSecuredEndpoints and SecuredEndpoints are mutually exclusive, define only one")
	}
	if c.LocalPassword == nil && c.MagicLink == nil {
		return configError("no authentication methods defined, enable LocalPassword and/or MagicLink")
	}
	if c.LocalPassword != nil && c.LocalPassword.DeliverResetToken == nil {
		return configError("LocalPassword requires a DeliverResetToken callback")
	}
	if c.MagicLink != nil && c.MagicLink.DeliverIdentifier == nil {
		return configError("MagicLink requires a DeliverIdentifier callback")
	}
	if c.RateLimit != nil && c.RateLimit.Limiter == nil {
		return configError("RateLimit requires a Limiter implementation")
	}
	return nil
}

func configError(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryOperation).WithTextCode("CONFIG_INVALID")
}

// isEndpointSecured decides whether the authentication middleware guards the
// given path. With neither list configured everything is secured. Each
// pattern independently decides the outcome, so scan order cannot change the
// result.
func (c *Config) isEndpointSecured(path string) bool {
	if len(c.NotSecuredEndpoints) == 0 && len(c.SecuredEndpoints) == 0 {
		return true
	}

	matchMeansSecured := len(c.SecuredEndpoints) > 0
	patterns := c.NotSecuredEndpoints
	if matchMeansSecured {
		patterns = c.SecuredEndpoints
	}

	for i := len(patterns) - 1; i >= 0; i-- {
		if patterns[i] == nil {
			continue
		}
		if patterns[i].MatchString(path) {
			return matchMeansSecured
		}
	}
	return !matchMeansSecured
}
