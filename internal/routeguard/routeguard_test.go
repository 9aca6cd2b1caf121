package routeguard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

func TestEvaluate(t *testing.T) {
	user := &Snapshot{ID: "u1", Role: models.RoleUser}
	admin := &Snapshot{ID: "a1", Role: models.RoleAdmin}

	tests := []struct {
		path string
		snap *Snapshot
		want string
	}{
		{"/", nil, ""},
		{"/cars/123", nil, ""},
		{"/dashboard", nil, "/login?next=%2Fdashboard"},
		{"/deals/ABC", nil, "/login?next=%2Fdeals%2FABC"},
		{"/deals/ABC", user, ""},
		{"/dealsx", nil, ""},
		{"/admin", nil, "/login?next=%2Fadmin"},
		{"/admin/users", user, "/unauthorized"},
		{"/admin/users", admin, ""},
		{"/login", user, "/"},
		{"/register", nil, ""},
		{"/api/deals", nil, ""},
		{"/api/admin/users", user, ""},
	}
	for _, tt := range tests {
		if got := Evaluate(tt.path, tt.snap); got != tt.want {
			t.Errorf("Evaluate(%q, %v) = %q, want %q", tt.path, tt.snap, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	s := Snapshot{ID: "u1", Name: "Abebe", Role: models.RoleOwner}
	got := Decode(s.Encode())
	if got == nil || *got != s {
		t.Fatalf("Decode(Encode()) = %v, want %v", got, s)
	}
	for _, raw := range []string{"", "not-json", `{"id":"u1","role":"root"}`, `{"role":"admin"}`} {
		if Decode(raw) != nil {
			t.Errorf("Decode(%q) should be nil", raw)
		}
	}
}

func TestMiddlewareRedirects(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/*", func(c *fiber.Ctx) error { return c.SendString("page") })

	req := httptest.NewRequest("GET", "/admin", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: (&Snapshot{ID: "u1", Role: models.RoleUser}).Encode()})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound || resp.Header.Get("Location") != "/unauthorized" {
		t.Fatalf("status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
