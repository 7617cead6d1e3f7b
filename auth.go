package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Auth is the embeddable authentication engine. It runs against an
// application-supplied RecordStore and exposes its HTTP surface through
// RegisterRoutes plus the Authenticate middleware.
type Auth struct {
	config  Config
	store   RecordStore
	users   usersRepo
	hasher  *PasswordHasher
	tokens  *TokenService
	creds   *Credentials
	refresh *RefreshTokens
	reset   *ResetTokens
	magic   *MagicLinks
	sweep   *sweeper
	logger  Logger
}

// New validates cfg, builds the engine, and starts the expiry sweeper. The
// returned Auth must be stopped with Stop when the application shuts down.
func New(store RecordStore, cfg Config) (*Auth, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger

	tokens := NewTokenService(cfg.TokenSecret, cfg.TokenAlgorithm, cfg.AccessTokenExpiration, logger)
	hasher := NewPasswordHasher()
	refresh := NewRefreshTokens(store, cfg.RefreshTokenExpiration, logger)

	creds, err := NewCredentials(store, hasher, logger)
	if err != nil {
		return nil, err
	}

	a := &Auth{
		config:  cfg,
		store:   store,
		users:   usersRepo{store: store},
		hasher:  hasher,
		tokens:  tokens,
		creds:   creds,
		refresh: refresh,
		logger:  logger,
	}

	if cfg.LocalPassword != nil {
		a.reset = NewResetTokens(store, hasher, refresh,
			cfg.LocalPassword.ResetTokenExpiration, cfg.LocalPassword.DeliverResetToken, logger)
	}
	if cfg.MagicLink != nil {
		a.magic = NewMagicLinks(store,
			cfg.MagicLink.Expiration, cfg.MagicLink.DeliverIdentifier, logger)
	}

	a.sweep = newSweeper(cfg.CleanupInterval, a.reset, a.magic, logger)
	a.sweep.Start()

	return a, nil
}

// RegisterRoutes mounts the auth endpoints on router. Only the routes for
// enabled methods are registered; /refresh is always available.
func (a *Auth) RegisterRoutes(router fiber.Router) {
	h := a.controller()

	var gates []fiber.Handler
	var identifierGate fiber.Handler
	if a.config.RateLimit != nil {
		gate := rateGate{limiter: a.config.RateLimit.Limiter, logger: a.logger}
		gates = append(gates, gate.general(a.config.RateLimit.General))
		identifierGate = gate.identifier(a.config.RateLimit.Identifier)
	}

	withGates := func(extra fiber.Handler, handler fiber.Handler) []fiber.Handler {
		handlers := append([]fiber.Handler{}, gates...)
		if extra != nil {
			handlers = append(handlers, extra)
		}
		return append(handlers, handler)
	}

	router.Post("/refresh", withGates(identifierGate, h.Refresh)...)

	if a.config.LocalPassword != nil {
		router.Post("/login", withGates(identifierGate, h.Login)...)
		router.Post("/register", withGates(identifierGate, h.Register)...)
		router.Post("/change-password", withGates(a.requireToken(), h.ChangePassword)...)
		router.Post("/reset-password", withGates(identifierGate, h.RequestResetPassword)...)
		router.Post("/do-reset-password", withGates(identifierGate, h.DoResetPassword)...)
	}

	if a.config.MagicLink != nil {
		router.Post("/get-magic-login", withGates(identifierGate, h.RequestMagicLogin)...)
		router.Post("/magic-login", withGates(identifierGate, h.MagicLogin)...)
	}
}

// VerifyAccessToken validates a bearer access token and returns the user id
// it was issued to.
func (a *Auth) VerifyAccessToken(token string) (string, error) {
	return a.tokens.Verify(token, time.Now())
}

// Stop halts the background sweeper. It blocks until an in-flight sweep
// finishes and is safe to call more than once.
func (a *Auth) Stop() {
	a.sweep.Stop()
}

func (a *Auth) controller() *controller {
	return &controller{
		config:  &a.config,
		users:   a.users,
		creds:   a.creds,
		hasher:  a.hasher,
		refresh: a.refresh,
		reset:   a.reset,
		magic:   a.magic,
		issuer:  tokenIssuer{access: a.tokens, refresh: a.refresh},
		logger:  a.logger,
	}
}

// requireToken enforces a valid bearer token regardless of the endpoint
// security policy. change-password always runs behind it.
func (a *Auth) requireToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject, err := a.tokens.Verify(bearerToken(c.Get(fiber.HeaderAuthorization)), time.Now())
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authenticated user required",
			})
		}
		c.Locals(LocalsSubjectKey, subject)
		c.SetUserContext(WithSubject(c.UserContext(), subject))
		return c.Next()
	}
}
