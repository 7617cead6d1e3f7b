package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Authenticate returns a fiber middleware enforcing bearer access tokens on
// secured endpoints. The authenticated user id is stored both in the request
// locals under LocalsSubjectKey and in the user context, so downstream code
// can use whichever it has access to.
func (a *Auth) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !a.config.isEndpointSecured(c.Path()) {
			return c.Next()
		}

		subject, err := a.tokens.Verify(bearerToken(c.Get(fiber.HeaderAuthorization)), time.Now())
		if err != nil {
			a.logger.Debug("rejecting request to %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authenticated user required",
			})
		}

		c.Locals(LocalsSubjectKey, subject)
		c.SetUserContext(WithSubject(c.UserContext(), subject))
		return c.Next()
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// check is case-insensitive per RFC 7235.
func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
