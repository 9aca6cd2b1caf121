package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
)

// EventsHandler streams notifications and deal updates over a websocket.
// Browsers cannot set headers on the upgrade, so the access token travels
// in ?token= (or the access cookie).
type EventsHandler struct {
	Auth *auth.Service
	Hub  *realtime.Hub
}

func (h *EventsHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	tok := c.Query("token")
	if tok == "" {
		tok = c.Cookies("accessToken")
	}
	u, err := h.Auth.Authenticate(c.UserContext(), tok)
	if err != nil {
		return err
	}
	c.Locals("userId", u.ID.String())
	return c.Next()
}

func (h *EventsHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		raw, _ := conn.Locals("userId").(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = conn.Close()
			return
		}
		h.Hub.Serve(conn, id)
	})
}
