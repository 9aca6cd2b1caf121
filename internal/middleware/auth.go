package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// bearerToken reads "Authorization: Bearer <t>" and falls back to the access cookie.
func bearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Cookies(AccessCookie)
}

func attach(c *fiber.Ctx, u *models.User) {
	c.Locals("userId", u.ID.String())
	c.Locals("role", string(u.Role))
	c.Locals("user", u)
	c.Locals("principal", u.Principal())
}

// Authenticate rejects the request unless it carries a valid access token of
// an active user.
func Authenticate(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := svc.Authenticate(c.UserContext(), bearerToken(c))
		if err != nil {
			return err
		}
		attach(c, u)
		return c.Next()
	}
}

// OptionalAuth attaches the user when the token resolves and never fails.
func OptionalAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tok := bearerToken(c); tok != "" {
			if u, err := svc.Authenticate(c.UserContext(), tok); err == nil {
				attach(c, u)
			}
		}
		return c.Next()
	}
}

// CurrentPrincipal returns the caller attached by Authenticate or OptionalAuth.
func CurrentPrincipal(c *fiber.Ctx) (models.Principal, bool) {
	p, ok := c.Locals("principal").(models.Principal)
	return p, ok
}

// MustPrincipal is CurrentPrincipal for routes behind Authenticate.
func MustPrincipal(c *fiber.Ctx) (models.Principal, error) {
	p, ok := CurrentPrincipal(c)
	if !ok {
		return models.Principal{}, apperror.Unauthorized("TOKEN_MISSING", "Authentication required")
	}
	return p, nil
}

func CurrentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals("user").(*models.User)
	return u
}
