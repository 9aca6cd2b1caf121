package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

func RequireRoles(allowed ...models.Role) fiber.Handler {
	allowedSet := map[models.Role]bool{}
	for _, r := range allowed {
		allowedSet[r] = true
	}

	return func(c *fiber.Ctx) error {
		p, ok := CurrentPrincipal(c)
		if !ok {
			return apperror.Unauthorized("TOKEN_MISSING", "Authentication required")
		}
		if !allowedSet[p.Role] {
			return apperror.Forbidden("Insufficient role")
		}
		return c.Next()
	}
}

func AdminOnly() fiber.Handler {
	return RequireRoles(models.RoleAdmin)
}
