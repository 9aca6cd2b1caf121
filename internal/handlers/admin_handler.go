package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/listing"
)

// AdminHandler serves the moderation queue and user management. Routes are
// mounted behind AdminOnly.
type AdminHandler struct {
	Listings *listing.Service
	Auth     *auth.Service
}

func (h *AdminHandler) Pending(c *fiber.Ctx) error {
	kind, err := paramKind(c)
	if err != nil {
		return err
	}
	page := pageFrom(c)
	items, total, err := h.Listings.Pending(c.UserContext(), kind, page)
	if err != nil {
		return err
	}
	return paginated(c, "OK", items, page, total)
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	kind, err := paramKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	l, err := h.Listings.Approve(c.UserContext(), kind, id)
	if err != nil {
		return err
	}
	return ok(c, "Listing approved", l)
}

func (h *AdminHandler) Reject(c *fiber.Ctx) error {
	kind, err := paramKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Listings.Reject(c.UserContext(), kind, id); err != nil {
		return err
	}
	return ok(c, "Listing rejected and removed", nil)
}

func (h *AdminHandler) Users(c *fiber.Ctx) error {
	q := repository.UserQuery{
		Page:   pageFrom(c),
		Role:   models.Role(strings.ToLower(c.Query("role"))),
		Search: strings.TrimSpace(c.Query("search")),
	}
	users, total, err := h.Auth.ListUsers(c.UserContext(), q)
	if err != nil {
		return err
	}
	return paginated(c, "OK", users, q.Page, total)
}

type activeReq struct {
	IsActive *bool `json:"is_active"`
}

func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req activeReq
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.IsActive == nil {
		return apperror.Invalid("VALIDATION_ERROR", "is_active", "is_active is required")
	}
	u, err := h.Auth.SetActive(c.UserContext(), p, id, *req.IsActive)
	if err != nil {
		return err
	}
	return ok(c, "User updated", u)
}

type roleReq struct {
	Role models.Role `json:"role"`
}

func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req roleReq
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.Auth.SetRole(c.UserContext(), p, id, models.Role(strings.ToLower(string(req.Role))))
	if err != nil {
		return err
	}
	return ok(c, "User updated", u)
}
