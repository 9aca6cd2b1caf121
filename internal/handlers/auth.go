package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/routeguard"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/token"
)

type AuthHandler struct {
	Auth         *auth.Service
	CookieSecure bool
	// AccessTTL and RefreshTTL set the cookie lifetimes; zero means a
	// session cookie.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (h *AuthHandler) cookie(c *fiber.Ctx, name, value string, ttl time.Duration, httpOnly bool) {
	maxAge := int(ttl.Seconds())
	if value == "" {
		maxAge = -1
	}
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: httpOnly,
		Secure:   h.CookieSecure,
		SameSite: "Lax",
		MaxAge:   maxAge,
	})
}

// setSession writes the token cookies plus the role snapshot the frontend
// route guard reads.
func (h *AuthHandler) setSession(c *fiber.Ctx, u *models.User, pair token.Pair) {
	h.cookie(c, middleware.AccessCookie, pair.AccessToken, h.AccessTTL, true)
	if pair.RefreshToken != "" {
		h.cookie(c, middleware.RefreshCookie, pair.RefreshToken, h.RefreshTTL, true)
	}
	snap := routeguard.Snapshot{ID: u.ID.String(), Name: u.Name, Role: u.Role}
	h.cookie(c, routeguard.CookieName, snap.Encode(), h.RefreshTTL, false)
}

func (h *AuthHandler) clearSession(c *fiber.Ctx) {
	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		h.cookie(c, name, "", 0, true)
	}
	h.cookie(c, routeguard.CookieName, "", 0, false)
}

func session(u *models.User, pair token.Pair) fiber.Map {
	return fiber.Map{"user": u, "tokens": pair}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req auth.RegisterInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, pair, err := h.Auth.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.setSession(c, u, pair)
	return created(c, "Registration successful", session(u, pair))
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req auth.LoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, pair, err := h.Auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.setSession(c, u, pair)
	return ok(c, "Login successful", session(u, pair))
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshReq
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = c.Cookies(middleware.RefreshCookie)
	}
	u, access, exp, err := h.Auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	pair := token.Pair{AccessToken: access, AccessExpiresAt: exp}
	h.setSession(c, u, pair)
	return ok(c, "Token refreshed", session(u, pair))
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearSession(c)
	return ok(c, "Logout successful", nil)
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req auth.EmailInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Auth.ForgotPassword(c.UserContext(), req); err != nil {
		return err
	}
	return ok(c, "If the email is registered, a reset code has been sent", nil)
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req auth.ResetInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, pair, err := h.Auth.ResetPassword(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.setSession(c, u, pair)
	return ok(c, "Password has been reset", session(u, pair))
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req auth.VerifyInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.Auth.VerifyEmail(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, "Email verified", fiber.Map{"user": u})
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req auth.EmailInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Auth.ResendVerification(c.UserContext(), req); err != nil {
		return err
	}
	return ok(c, "If the account needs verification, a new code has been sent", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	u, err := h.Auth.Me(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, "OK", fiber.Map{"user": u})
}

func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req auth.ProfileInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.Auth.UpdateProfile(c.UserContext(), p.UserID, req)
	if err != nil {
		return err
	}
	return ok(c, "Profile updated", fiber.Map{"user": u})
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req auth.ChangePasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Auth.ChangePassword(c.UserContext(), p.UserID, req); err != nil {
		return err
	}
	return ok(c, "Password changed", nil)
}

func (h *AuthHandler) Deactivate(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.Auth.Deactivate(c.UserContext(), p.UserID); err != nil {
		return err
	}
	h.clearSession(c)
	return ok(c, "Account deactivated", nil)
}
