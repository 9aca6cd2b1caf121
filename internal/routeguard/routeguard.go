// Package routeguard redirects page navigations based on the role snapshot
// kept in the "user" cookie. It is advisory: API routes authenticate on
// their own and never trust the snapshot.
package routeguard

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

const CookieName = "user"

// Snapshot is the non-sensitive part of the signed-in user stored in the
// cookie for the frontend.
type Snapshot struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

func (s Snapshot) Encode() string {
	b, _ := json.Marshal(s)
	return url.QueryEscape(string(b))
}

// Decode returns nil for a missing or unreadable cookie.
func Decode(raw string) *Snapshot {
	if raw == "" {
		return nil
	}
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.ID == "" || !s.Role.Valid() {
		return nil
	}
	return &s
}

var (
	protected = []string{"/dashboard", "/deals", "/profile", "/favorites"}
	guestOnly = []string{"/login", "/register"}
	passThru  = []string{"/api", "/ws", "/metrics"}
)

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Evaluate returns the redirect target for path, or "" to let the request through.
func Evaluate(path string, s *Snapshot) string {
	switch {
	case hasPrefix(path, passThru):
		return ""
	case hasPrefix(path, []string{"/admin"}):
		if s == nil {
			return "/login?next=" + url.QueryEscape(path)
		}
		if s.Role != models.RoleAdmin {
			return "/unauthorized"
		}
	case hasPrefix(path, protected):
		if s == nil {
			return "/login?next=" + url.QueryEscape(path)
		}
	case hasPrefix(path, guestOnly):
		if s != nil {
			return "/"
		}
	}
	return ""
}

// Middleware applies Evaluate to every request it sees.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if to := Evaluate(c.Path(), Decode(c.Cookies(CookieName))); to != "" {
			return c.Redirect(to, fiber.StatusFound)
		}
		return c.Next()
	}
}
