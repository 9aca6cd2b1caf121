package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/deal"
)

type DealHandler struct {
	Deals *deal.Service
}

func (h *DealHandler) Create(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req deal.CreateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	d, err := h.Deals.Create(c.UserContext(), p, req)
	if err != nil {
		return err
	}
	return created(c, "Deal created", d)
}

// List accepts ?role=buyer|seller and ?status=.
func (h *DealHandler) List(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	q := repository.DealQuery{
		Page:   pageFrom(c),
		AsRole: strings.ToLower(c.Query("role")),
		Status: models.DealStatus(strings.ToLower(c.Query("status"))),
	}
	deals, total, err := h.Deals.List(c.UserContext(), p, q)
	if err != nil {
		return err
	}
	return paginated(c, "OK", deals, q.Page, total)
}

// Get accepts the row id or the public deal code.
func (h *DealHandler) Get(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	d, err := h.Deals.Get(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, "OK", d)
}

type dealStatusReq struct {
	Status             string `json:"status"`
	CancellationReason string `json:"cancellation_reason"`
}

func (h *DealHandler) UpdateStatus(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req dealStatusReq
	if err := parseBody(c, &req); err != nil {
		return err
	}
	action, valid := deal.ParseAction(req.Status)
	if !valid {
		return apperror.Invalid("INVALID_TRANSITION", "status", "unknown deal status")
	}
	d, err := h.Deals.Transition(c.UserContext(), p, id, action, req.CancellationReason)
	if err != nil {
		return err
	}
	return ok(c, "Deal "+string(d.Status), d)
}

func (h *DealHandler) Rate(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req deal.RateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	d, err := h.Deals.Rate(c.UserContext(), p, id, req)
	if err != nil {
		return err
	}
	return ok(c, "Rating saved", d)
}

func (h *DealHandler) Delete(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Deals.Delete(c.UserContext(), p, id); err != nil {
		return err
	}
	return ok(c, "Deal deleted", nil)
}
