package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
)

func respond(c *fiber.Ctx, status int, message string, data any) error {
	body := fiber.Map{
		"success": true,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func ok(c *fiber.Ctx, message string, data any) error {
	return respond(c, fiber.StatusOK, message, data)
}

func created(c *fiber.Ctx, message string, data any) error {
	return respond(c, fiber.StatusCreated, message, data)
}

func paginated(c *fiber.Ctx, message string, data any, page repository.Page, total int64) error {
	pages := int64(0)
	if page.Limit > 0 {
		pages = (total + int64(page.Limit) - 1) / int64(page.Limit)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
		"meta": fiber.Map{
			"page":        page.Page,
			"limit":       page.Limit,
			"total_items": total,
			"total_pages": pages,
		},
	})
}

func pageFrom(c *fiber.Ctx) repository.Page {
	return repository.Page{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", 20),
	}.Normalize()
}

func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return apperror.Invalid("INVALID_BODY", "body", "request body is required")
	}
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return apperror.Invalid("INVALID_BODY", "body", "invalid body")
	}
	return nil
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperror.Invalid("INVALID_ID", name, "invalid id")
	}
	return id, nil
}

func paramKind(c *fiber.Ctx) (models.ListingKind, error) {
	k, ok := models.ParseKind(c.Params("kind"))
	if !ok {
		return "", apperror.Invalid("INVALID_ITEM_TYPE", "kind", "unknown listing kind")
	}
	return k, nil
}

func optionalPrincipal(c *fiber.Ctx) *models.Principal {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return nil
	}
	return &p
}
