package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check probes one backend; nil means healthy.
type Check func(ctx context.Context) error

type HealthHandler struct {
	Checks map[string]Check
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	components := fiber.Map{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"success": status == "ok",
		"message": status,
		"data": fiber.Map{
			"status":     status,
			"components": components,
			"time":       time.Now().UTC(),
		},
	})
}
