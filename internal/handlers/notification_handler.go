package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/notification"
)

type NotificationHandler struct {
	Notifications *notification.Publisher
}

// List accepts ?unread=true to hide read notifications.
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	page := pageFrom(c)
	out, total, err := h.Notifications.List(c.UserContext(), p.UserID, c.QueryBool("unread", false), page)
	if err != nil {
		return err
	}
	return paginated(c, "OK", out, page, total)
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	n, err := h.Notifications.UnreadCount(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, "OK", fiber.Map{"count": n})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.Notifications.MarkRead(c.UserContext(), p.UserID, c.Params("id")); err != nil {
		return err
	}
	return ok(c, "Notification marked as read", nil)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	n, err := h.Notifications.MarkAllRead(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, "Notifications marked as read", fiber.Map{"updated": n})
}
