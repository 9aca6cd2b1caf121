package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
)

const (
	oauthStateCookie = "oauth_state"
	oauthNextCookie  = "oauth_next"

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type GoogleOAuthHandler struct {
	Session         *AuthHandler
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
	Log             *zap.SugaredLogger
}

func (h *GoogleOAuthHandler) oauthCfg() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.GoogleClientID,
		ClientSecret: h.GoogleSecret,
		RedirectURL:  h.GoogleRedirect,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func randomState(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// safeNext keeps redirects on the frontend origin.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

func (h *GoogleOAuthHandler) tempCookie(c *fiber.Ctx, name, value string, maxAge int) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.Session.CookieSecure,
		SameSite: "Lax",
		MaxAge:   maxAge,
	})
}

func (h *GoogleOAuthHandler) GoogleStart(c *fiber.Ctx) error {
	if h.GoogleClientID == "" {
		return apperror.Unavailable("Google sign-in is not configured")
	}
	st := randomState(32)
	h.tempCookie(c, oauthStateCookie, st, 10*60)
	h.tempCookie(c, oauthNextCookie, safeNext(c.Query("next", "/")), 10*60)

	authURL := h.oauthCfg().AuthCodeURL(st, oauth2.AccessTypeOffline)
	return c.Redirect(authURL, http.StatusTemporaryRedirect)
}

type googleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (h *GoogleOAuthHandler) loginError(c *fiber.Ctx, msg string) error {
	target := h.FrontendBaseURL + "/login?err=" + url.QueryEscape(msg)
	return c.Redirect(target, http.StatusTemporaryRedirect)
}

func (h *GoogleOAuthHandler) GoogleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return apperror.Invalid("INVALID_OAUTH_CALLBACK", "code", "missing code or state")
	}
	if st := c.Cookies(oauthStateCookie); st == "" || st != state {
		return apperror.Invalid("INVALID_OAUTH_STATE", "state", "invalid state")
	}
	next := safeNext(c.Cookies(oauthNextCookie))

	ctx := c.UserContext()
	cfg := h.oauthCfg()
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		h.Log.Warnw("google code exchange", "error", err)
		return h.loginError(c, "Google sign-in failed")
	}
	resp, err := cfg.Client(ctx, tok).Get(googleUserInfoURL)
	if err != nil {
		h.Log.Warnw("google userinfo", "error", err)
		return h.loginError(c, "Google sign-in failed")
	}
	defer resp.Body.Close()

	var gu googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return h.loginError(c, "Google sign-in failed")
	}
	if !gu.VerifiedEmail {
		return h.loginError(c, "Google email is not verified")
	}

	u, pair, err := h.Session.Auth.GoogleSignIn(ctx, auth.GoogleProfile{Email: gu.Email, Name: gu.Name, Picture: gu.Picture})
	if err != nil {
		if e, ok := apperror.As(err); ok && e.Kind != apperror.KindInternal {
			return h.loginError(c, e.Message)
		}
		return err
	}

	h.Session.setSession(c, u, pair)
	h.tempCookie(c, oauthStateCookie, "", -1)
	h.tempCookie(c, oauthNextCookie, "", -1)
	return c.Redirect(h.FrontendBaseURL+next, http.StatusTemporaryRedirect)
}
