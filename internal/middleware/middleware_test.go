package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/ratelimit"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/token"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/testutil"
)

var nop = zap.NewNop().Sugar()

func do(t *testing.T, app *fiber.App, method, path, bearer string) (int, map[string]any, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var m map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&m)
	return resp.StatusCode, m, resp.Header.Get(fiber.HeaderRetryAfter)
}

type authFixture struct {
	app    *fiber.App
	users  *testutil.UserStore
	tokens *token.Service
	clock  *testutil.Clock
}

func newAuthFixture() *authFixture {
	clock := testutil.NewClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	users := testutil.NewUserStore()
	tokens := token.NewService("access", "refresh", 0, 0).WithClock(clock.Now)
	svc := auth.NewService(users, tokens, &testutil.Mailer{}, nop).WithClock(clock.Now)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nop)})
	app.Get("/me", Authenticate(svc), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals("userId"), "role": c.Locals("role")})
	})
	app.Get("/admin", Authenticate(svc), AdminOnly(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/maybe", OptionalAuth(svc), func(c *fiber.Ctx) error {
		_, ok := CurrentPrincipal(c)
		return c.JSON(fiber.Map{"signed_in": ok})
	})
	return &authFixture{app: app, users: users, tokens: tokens, clock: clock}
}

func (f *authFixture) user(t *testing.T, role models.Role, active bool) (*models.User, string) {
	t.Helper()
	u := &models.User{Name: "U", Email: string(role) + "@example.com", Phone: testutil.Phone(f.users.Count() + 1), Role: role, IsActive: active}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, _, err := f.tokens.IssueAccess(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return u, tok
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture()
	u, tok := f.user(t, models.RoleUser, true)
	_, inactive := f.user(t, models.RoleOwner, false)

	status, m, _ := do(t, f.app, "GET", "/me", "")
	if status != fiber.StatusUnauthorized || m["code"] != "TOKEN_MISSING" {
		t.Fatalf("no token: %d %v", status, m)
	}
	status, m, _ = do(t, f.app, "GET", "/me", "garbage")
	if status != fiber.StatusUnauthorized || m["code"] != "TOKEN_INVALID" {
		t.Fatalf("bad token: %d %v", status, m)
	}
	status, m, _ = do(t, f.app, "GET", "/me", inactive)
	if status != fiber.StatusUnauthorized || m["code"] != "ACCOUNT_INACTIVE" {
		t.Fatalf("inactive: %d %v", status, m)
	}

	status, m, _ = do(t, f.app, "GET", "/me", tok)
	if status != fiber.StatusOK || m["id"] != u.ID.String() || m["role"] != "user" {
		t.Fatalf("valid: %d %v", status, m)
	}
	stored, _ := f.users.GetByID(context.Background(), u.ID)
	if stored.LastLogin == nil {
		t.Fatal("last_login not refreshed")
	}

	f.clock.Advance(16 * time.Minute)
	status, m, _ = do(t, f.app, "GET", "/me", tok)
	if status != fiber.StatusUnauthorized || m["code"] != "TOKEN_EXPIRED" {
		t.Fatalf("expired: %d %v", status, m)
	}
}

func TestAdminOnlyAndOptionalAuth(t *testing.T) {
	f := newAuthFixture()
	_, userTok := f.user(t, models.RoleUser, true)
	_, adminTok := f.user(t, models.RoleAdmin, true)

	if status, _, _ := do(t, f.app, "GET", "/admin", userTok); status != fiber.StatusForbidden {
		t.Fatalf("user on admin route: %d", status)
	}
	if status, _, _ := do(t, f.app, "GET", "/admin", adminTok); status != fiber.StatusOK {
		t.Fatalf("admin on admin route: %d", status)
	}

	_, m, _ := do(t, f.app, "GET", "/maybe", "garbage")
	if m["signed_in"] != false {
		t.Fatalf("optional with bad token = %v", m)
	}
	_, m, _ = do(t, f.app, "GET", "/maybe", userTok)
	if m["signed_in"] != true {
		t.Fatalf("optional with token = %v", m)
	}
}

type brokenStore struct{}

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}
func (brokenStore) Reset(context.Context, string) error { return nil }

func TestSensitiveLimiter(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	store := ratelimit.NewMemoryStore().WithClock(clock.Now)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nop)})
	app.Post("/login", SensitiveLimiter(ratelimit.NewLimiter(store, 5, 15*time.Minute), "login", nop), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	for i := 1; i <= 5; i++ {
		if status, _, _ := do(t, app, "POST", "/login", ""); status != fiber.StatusOK {
			t.Fatalf("attempt %d: status %d", i, status)
		}
	}
	status, m, retry := do(t, app, "POST", "/login", "")
	if status != fiber.StatusTooManyRequests {
		t.Fatalf("6th attempt: status %d", status)
	}
	if secs, _ := m["retry_after"].(float64); secs <= 0 || retry == "" {
		t.Fatalf("retry_after = %v, header %q", m["retry_after"], retry)
	}

	clock.Advance(15*time.Minute + time.Second)
	if status, _, _ := do(t, app, "POST", "/login", ""); status != fiber.StatusOK {
		t.Fatalf("after window: status %d", status)
	}

	open := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nop)})
	open.Post("/login", SensitiveLimiter(ratelimit.NewLimiter(brokenStore{}, 5, time.Minute), "login", nop), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if status, _, _ := do(t, open, "POST", "/login", ""); status != fiber.StatusOK {
		t.Fatalf("store failure should fail open, got %d", status)
	}
}

func TestErrorHandlerEnvelope(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nop)})
	app.Get("/validation", func(c *fiber.Ctx) error {
		f := apperror.FieldErrors{}
		f.Add("phone", "phone must be +251 followed by 9 digits")
		return apperror.Validation(f)
	})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db password leaked") })

	status, m, _ := do(t, app, "GET", "/validation", "")
	if status != fiber.StatusBadRequest || m["success"] != false || m["code"] != "VALIDATION_ERROR" {
		t.Fatalf("validation: %d %v", status, m)
	}
	if errs, ok := m["errors"].(map[string]any); !ok || errs["phone"] == nil {
		t.Fatalf("errors = %v", m["errors"])
	}

	status, m, _ = do(t, app, "GET", "/boom", "")
	if status != fiber.StatusInternalServerError || m["message"] != "Internal server error" {
		t.Fatalf("internal: %d %v", status, m)
	}

	status, m, _ = do(t, app, "GET", "/nowhere", "")
	if status != fiber.StatusNotFound || m["code"] != "NOT_FOUND" {
		t.Fatalf("404: %d %v", status, m)
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(6, nop)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nop)})
	app.Use(l.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < l.burst; i++ {
		if status, _, _ := do(t, app, "GET", "/", ""); status != fiber.StatusOK {
			t.Fatalf("request %d: status %d", i+1, status)
		}
	}
	status, _, retry := do(t, app, "GET", "/", "")
	if status != fiber.StatusTooManyRequests || retry == "" {
		t.Fatalf("over burst: status %d retry %q", status, retry)
	}
}
