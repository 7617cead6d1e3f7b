package auth

import (
	"context"
	"encoding/json"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	Token string `json:"token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type changePasswordRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
	)
}

type doResetPasswordRequest struct {
	Password string `json:"password"`
	Token    string `json:"token"`
}

func (r doResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Token, validation.Required),
	)
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

func (r magicLinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type magicLoginRequest struct {
	Identifier string `json:"identifier"`
}

func (r magicLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
	)
}

type loginData struct {
	Authorized   bool   `json:"authorized"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type loginResponse struct {
	Data loginData `json:"data"`
}

type registrationData struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type registrationResponse struct {
	Data registrationData `json:"data"`
}

type refreshData struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type refreshResponse struct {
	Data refreshData `json:"data"`
}

type changePasswordResponse struct {
	Data Tokens `json:"data"`
}

type doResetPasswordData struct {
	Success      bool   `json:"success"`
	Reason       string `json:"reason,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type doResetPasswordResponse struct {
	Data doResetPasswordData `json:"data"`
}

const reasonInvalidToken = "INVALID_TOKEN"

// controller holds the HTTP handlers for the auth endpoints. Response bodies
// follow a fixed envelope per endpoint and deliberately leak nothing about
// account existence, with the single exception of register.
type controller struct {
	config  *Config
	users   usersRepo
	creds   *Credentials
	hasher  *PasswordHasher
	refresh *RefreshTokens
	reset   *ResetTokens
	magic   *MagicLinks
	issuer  tokenIssuer
	logger  Logger
}

// fireHook runs a lifecycle hook in the background. Hook failures are the
// application's problem, never the requester's.
func (h *controller) fireHook(name string, hook func(context.Context, User) error, user User) {
	if hook == nil {
		return
	}
	go func() {
		if err := hook(context.Background(), user); err != nil {
			h.logger.Warn("%s hook failed for user %s: %v", name, user.ID, err)
		}
	}()
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message})
}

func internalError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Internal server error",
	})
}

func (h *controller) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request. No username and/or password provided.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "Invalid request. No username and/or password provided.")
	}

	user, err := h.creds.Check(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if IsAuthFailure(err) {
			return c.JSON(loginResponse{Data: loginData{Authorized: false}})
		}
		h.logger.Error("login failed: %v", err)
		return internalError(c)
	}

	tokens, err := h.issuer.issue(c.UserContext(), *user, nil)
	if err != nil {
		h.logger.Error("token generation failed: %v", err)
		return internalError(c)
	}

	if err := h.users.touchLastLogin(c.UserContext(), user); err != nil {
		h.logger.Error("login failed: %v", err)
		return internalError(c)
	}

	h.fireHook("login", h.config.Hooks.OnLogin, *user)
	return c.JSON(loginResponse{Data: loginData{
		Authorized:   true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}})
}

func (h *controller) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request. No email and/or password provided.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "Invalid request. No email and/or password provided.")
	}
	h.logger.Debug("registration attempt for %s", anonymizeEmail(req.Email))

	existing, err := h.users.getByEmail(c.UserContext(), req.Email)
	if err != nil {
		h.logger.Error("registration failed: %v", err)
		return internalError(c)
	}
	if existing != nil {
		h.logger.Debug("email %s already registered", anonymizeEmail(req.Email))
		return c.JSON(registrationResponse{Data: registrationData{
			Success: false,
			Message: "The emailaddress is already in use. Did you mean to login?",
		}})
	}

	passwordHash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.logger.Error("registration failed: %v", err)
		return internalError(c)
	}

	now := timeInSeconds()
	user, err := h.users.create(c.UserContext(), User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		LastLoginAt:  now,
	})
	if err != nil {
		h.logger.Error("registration failed: %v", err)
		return internalError(c)
	}

	tokens, err := h.issuer.issue(c.UserContext(), *user, nil)
	if err != nil {
		h.logger.Error("token generation failed: %v", err)
		return internalError(c)
	}

	h.fireHook("registration", h.config.Hooks.OnRegistration, *user)
	return c.JSON(registrationResponse{Data: registrationData{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}})
}

func (h *controller) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "No token provided in request.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "No token provided in request.")
	}

	user, replaced, err := h.refresh.Redeem(c.UserContext(), req.Token)
	if err != nil {
		if IsAuthFailure(err) {
			return c.Status(fiber.StatusUnauthorized).JSON(refreshResponse{
				Data: refreshData{Success: false},
			})
		}
		h.logger.Error("refresh failed: %v", err)
		return internalError(c)
	}

	tokens, err := h.issuer.issue(c.UserContext(), *user, replaced)
	if err != nil {
		h.logger.Error("token generation failed: %v", err)
		return internalError(c)
	}

	if err := h.users.touchLastLogin(c.UserContext(), user); err != nil {
		h.logger.Error("refresh failed: %v", err)
		return internalError(c)
	}

	h.fireHook("refresh", h.config.Hooks.OnRefresh, *user)
	return c.JSON(refreshResponse{Data: refreshData{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}})
}

func (h *controller) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request. No username and/or password provided.")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Invalid request. No username and/or password provided.")
	}
	if req.NewPassword == "" {
		return badRequest(c, "Invalid request. No new password provided.")
	}

	user, err := h.creds.Check(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if IsAuthFailure(err) {
			return badRequest(c, "Could not authorize user.")
		}
		h.logger.Error("change password failed: %v", err)
		return internalError(c)
	}

	passwordHash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		h.logger.Error("change password failed: %v", err)
		return internalError(c)
	}
	user.PasswordHash = passwordHash
	user.LastLoginAt = timeInSeconds()
	if err := h.users.update(c.UserContext(), *user); err != nil {
		h.logger.Error("change password failed: %v", err)
		return internalError(c)
	}

	// Every open session dies with the old password.
	if err := h.refresh.RevokeAll(c.UserContext(), user.ID); err != nil {
		h.logger.Error("change password failed: %v", err)
		return internalError(c)
	}

	tokens, err := h.issuer.issue(c.UserContext(), *user, nil)
	if err != nil {
		h.logger.Error("token generation failed: %v", err)
		return internalError(c)
	}

	h.fireHook("change password", h.config.Hooks.OnChangePassword, *user)
	return c.JSON(changePasswordResponse{Data: tokens})
}

func (h *controller) RequestResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request. No email provided.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "Invalid request. No email provided.")
	}

	user, identifier, expires, err := h.reset.Request(c.UserContext(), req.Email)
	if err != nil {
		h.logger.Error("reset password request failed: %v", err)
		return internalError(c)
	}

	if user != nil && h.config.Hooks.OnRequestResetPassword != nil {
		u, id, exp := *user, identifier, expires
		go func() {
			if err := h.config.Hooks.OnRequestResetPassword(context.Background(), u, id, exp); err != nil {
				h.logger.Warn("request reset password hook failed for user %s: %v", u.ID, err)
			}
		}()
	}

	// 201 either way. The response must not reveal whether the account exists.
	return c.SendStatus(fiber.StatusCreated)
}

func (h *controller) DoResetPassword(c *fiber.Ctx) error {
	var req doResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request. No password or token field provided.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "Invalid request. No password or token field provided.")
	}

	user, err := h.reset.Consume(c.UserContext(), req.Token, req.Password)
	if err != nil {
		if IsAuthFailure(err) {
			return c.JSON(doResetPasswordResponse{Data: doResetPasswordData{
				Success: false,
				Reason:  reasonInvalidToken,
			}})
		}
		h.logger.Error("reset password failed: %v", err)
		return internalError(c)
	}

	tokens, err := h.issuer.issue(c.UserContext(), *user, nil)
	if err != nil {
		h.logger.Error("token generation failed: %v", err)
		return internalError(c)
	}

	h.fireHook("reset password", h.config.Hooks.OnResetPassword, *user)
	return c.JSON(doResetPasswordResponse{Data: doResetPasswordData{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}})
}

func (h *controller) RequestMagicLogin(c *fiber.Ctx) error {
	var req magicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request. No valid email address provided.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "Invalid request. No valid email address provided.")
	}

	user, identifier, expires, err := h.magic.Request(c.UserContext(), req.Email)
	if err != nil {
		h.logger.Error("magic login request failed: %v", err)
		return internalError(c)
	}

	if h.config.Hooks.OnRequestMagicLink != nil {
		u, id, exp := *user, identifier, expires
		go func() {
			if err := h.config.Hooks.OnRequestMagicLink(context.Background(), u, id, exp); err != nil {
				h.logger.Warn("request magic link hook failed for user %s: %v", u.ID, err)
			}
		}()
	}

	return c.SendStatus(fiber.StatusCreated)
}

func (h *controller) MagicLogin(c *fiber.Ctx) error {
	var req magicLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "No identifier provided.")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "No identifier provided.")
	}

	id, secret, found := strings.Cut(req.Identifier, compositeSeparator)
	if !found || id == "" || secret == "" {
		return badRequest(c, "Invalid identifier provided in request.")
	}

	user, err := h.magic.Consume(c.UserContext(), req.Identifier)
	if err != nil {
		if IsAuthFailure(err) {
			return c.JSON(loginResponse{Data: loginData{Authorized: false}})
		}
		h.logger.Error("magic login failed: %v", err)
		return internalError(c)
	}

	tokens, err := h.issuer.issue(c.UserContext(), *user, nil)
	if err != nil {
		h.logger.Error("token generation failed: %v", err)
		return internalError(c)
	}

	h.fireHook("magic login", h.config.Hooks.OnMagicLogin, *user)
	return c.JSON(loginResponse{Data: loginData{
		Authorized:   true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}})
}

// rateGate produces the rate limit middlewares. Limiter errors fail open: a
// broken limiter backend must not take authentication down with it.
type rateGate struct {
	limiter RateLimiter
	logger  Logger
}

func (g rateGate) allow(ctx context.Context, key string, window RateWindow) bool {
	if g.limiter == nil {
		return true
	}
	ok, err := g.limiter.Allow(ctx, key, window.Max, window.Window)
	if err != nil {
		g.logger.Warn("rate limiter error for %s, allowing request: %v", key, err)
		return true
	}
	return ok
}

// general limits by client IP.
func (g rateGate) general(window RateWindow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !g.allow(c.UserContext(), "general:"+c.IP(), window) {
			return c.SendStatus(fiber.StatusTooManyRequests)
		}
		return c.Next()
	}
}

// identifier limits by the identifying value in the request body, so one
// address cannot be hammered from many IPs. Bodies that do not parse fall
// through to the handler's own validation.
func (g rateGate) identifier(window RateWindow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Identifier string `json:"identifier"`
			Email      string `json:"email"`
			Token      string `json:"token"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Next()
		}

		key := body.Identifier
		if key == "" {
			key = body.Email
		}
		if key == "" {
			key = body.Token
		}
		if key == "" {
			return c.Next()
		}

		if !g.allow(c.UserContext(), "identifier:"+key, window) {
			return c.SendStatus(fiber.StatusTooManyRequests)
		}
		return c.Next()
	}
}
