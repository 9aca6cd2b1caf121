package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/consultation"
)

type ConsultationHandler struct {
	Consultations *consultation.Service
}

// Create is open to visitors; a signed-in caller is linked to the booking.
func (h *ConsultationHandler) Create(c *fiber.Ctx) error {
	var req consultation.CreateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	out, err := h.Consultations.Create(c.UserContext(), optionalPrincipal(c), req)
	if err != nil {
		return err
	}
	return created(c, "Consultation booked", out)
}

func (h *ConsultationHandler) List(c *fiber.Ctx) error {
	q := repository.ConsultationQuery{
		Page:     pageFrom(c),
		Status:   models.ConsultationStatus(strings.ToLower(c.Query("status"))),
		Category: strings.ToLower(c.Query("category")),
	}
	out, total, err := h.Consultations.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	return paginated(c, "OK", out, q.Page, total)
}

func (h *ConsultationHandler) Mine(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	page := pageFrom(c)
	out, total, err := h.Consultations.Mine(c.UserContext(), p, page)
	if err != nil {
		return err
	}
	return paginated(c, "OK", out, page, total)
}

func (h *ConsultationHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	out, err := h.Consultations.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "OK", out)
}

func (h *ConsultationHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req consultation.StatusInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.Status = models.ConsultationStatus(strings.ToLower(string(req.Status)))
	out, err := h.Consultations.UpdateStatus(c.UserContext(), id, req)
	if err != nil {
		return err
	}
	return ok(c, "Consultation "+string(out.Status), out)
}
