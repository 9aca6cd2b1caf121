package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/config"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/consultation"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/deal"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/listing"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/notification"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/ratelimit"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/token"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/testutil"
)

type envelope struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	Code       string              `json:"code"`
	Data       json.RawMessage     `json:"data"`
	Errors     map[string][]string `json:"errors"`
	Meta       map[string]any      `json:"meta"`
	RetryAfter int                 `json:"retry_after"`
}

type testServer struct {
	app    *fiber.App
	stores repository.Stores
	tokens *token.Service
	pub    *notification.Publisher
	clock  *testutil.Clock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	nop := zap.NewNop().Sugar()
	clock := testutil.NewClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	stores := testutil.NewStores()
	mail := &testutil.Mailer{}
	tokens := token.NewService("access", "refresh", 0, 0).WithClock(clock.Now)
	pub := notification.NewPublisher(testutil.NewNotificationStore(), testutil.NewPusher(), mail, stores.Users, nop).WithClock(clock.Now)

	app := New(Deps{
		Config:        config.Config{AppEnv: "test"},
		Log:           nop,
		Auth:          auth.NewService(stores.Users, tokens, mail, nop).WithClock(clock.Now),
		Listings:      listing.NewService(stores.Listings, stores.Favorites, testutil.NewImageStore(), pub, nop),
		Deals:         deal.NewService(stores.Deals, stores.Listings, &testutil.Transactor{Stores: stores}, pub, nop).WithClock(clock.Now),
		Consultations: consultation.NewService(stores.Consultations, pub, nop).WithClock(clock.Now),
		Notifications: pub,
		Hub:           realtime.NewHub(nop),
		Limiter:       ratelimit.NewLimiter(ratelimit.NewMemoryStore().WithClock(clock.Now), 5, 15*time.Minute),
	})
	t.Cleanup(pub.Wait)
	return &testServer{app: app, stores: stores, tokens: tokens, pub: pub, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

// user inserts an account directly and returns an access token for it.
func (s *testServer) user(t *testing.T, role models.Role) (*models.User, string) {
	t.Helper()
	n := s.stores.Users.(*testutil.UserStore).Count() + 1
	u := &models.User{
		Name:     string(role) + strconv.Itoa(n),
		Email:    string(role) + strconv.Itoa(n) + "@example.com",
		Phone:    testutil.Phone(n),
		Role:     role,
		IsActive: true,
	}
	if err := s.stores.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, _, err := s.tokens.IssueAccess(u)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return u, tok
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func carBody() map[string]any {
	return map[string]any{
		"title":    "Toyota Corolla 2018",
		"price":    1500000,
		"purpose":  "sale",
		"location": map[string]any{"city": "Addis Ababa"},
		"make":     "Toyota",
		"model":    "Corolla",
		"year":     2018,
	}
}

func TestRegisterAndLoginSetCookies(t *testing.T) {
	s := newTestServer(t)
	reg := map[string]any{"name": "Abebe", "email": "abebe@example.com", "phone": "+251911223344", "password": "Secret1"}
	resp, env := s.do(t, http.MethodPost, "/api/auth/register", "", reg)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register status = %d, body = %+v", resp.StatusCode, env)
	}

	resp, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "abebe@example.com", "password": "Secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body = %+v", resp.StatusCode, env)
	}
	cookies := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c
	}
	for _, name := range []string{"accessToken", "refreshToken", "user"} {
		if cookies[name] == nil || cookies[name].Value == "" {
			t.Fatalf("cookie %s missing", name)
		}
	}
	if !cookies["accessToken"].HttpOnly || cookies["user"].HttpOnly {
		t.Fatal("token cookies must be HTTP only, the role snapshot must not")
	}

	data := decode[struct {
		User   models.User `json:"user"`
		Tokens token.Pair  `json:"tokens"`
	}](t, env.Data)
	resp, env = s.do(t, http.MethodGet, "/api/auth/me", data.Tokens.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, body = %+v", resp.StatusCode, env)
	}
}

func TestRegisterValidationCreatesNoUser(t *testing.T) {
	s := newTestServer(t)
	reg := map[string]any{"name": "Abebe", "email": "abebe@example.com", "phone": "0911223344", "password": "Secret1"}
	resp, env := s.do(t, http.MethodPost, "/api/auth/register", "", reg)
	if resp.StatusCode != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("status = %d, body = %+v", resp.StatusCode, env)
	}
	if len(env.Errors["phone"]) == 0 {
		t.Fatalf("errors = %v, want phone", env.Errors)
	}
	if n := s.stores.Users.(*testutil.UserStore).Count(); n != 0 {
		t.Fatalf("users = %d, want 0", n)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	s := newTestServer(t)
	creds := map[string]any{"email": "nobody@example.com", "password": "Wrong1"}
	for i := 1; i <= 5; i++ {
		resp, _ := s.do(t, http.MethodPost, "/api/auth/login", "", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i, resp.StatusCode)
		}
	}
	resp, env := s.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("6th attempt: status = %d, want 429", resp.StatusCode)
	}
	if env.RetryAfter <= 0 || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("retry_after = %d, header = %q", env.RetryAfter, resp.Header.Get("Retry-After"))
	}

	s.clock.Advance(15*time.Minute + time.Second)
	if resp, _ := s.do(t, http.MethodPost, "/api/auth/login", "", creds); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after window: status = %d, want 401", resp.StatusCode)
	}
}

func TestDealLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, adminTok := s.user(t, models.RoleAdmin)
	_, buyerTok := s.user(t, models.RoleUser)
	_, strangerTok := s.user(t, models.RoleUser)

	resp, env := s.do(t, http.MethodPost, "/api/cars", adminTok, carBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create car: status = %d, body = %+v", resp.StatusCode, env)
	}
	car := decode[models.Car](t, env.Data)
	if !car.Approved {
		t.Fatal("admin listings should be approved immediately")
	}

	resp, env = s.do(t, http.MethodPost, "/api/deals", buyerTok, map[string]any{"item_id": car.ID, "item_type": "car"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create deal: status = %d, body = %+v", resp.StatusCode, env)
	}
	d := decode[models.Deal](t, env.Data)
	if d.Status != models.DealPending || d.DealID == "" || d.DealType != models.DealSale {
		t.Fatalf("deal = %+v", d)
	}

	if resp, _ := s.do(t, http.MethodGet, "/api/deals/"+d.ID.String(), strangerTok, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stranger read: status = %d, want 404", resp.StatusCode)
	}
	resp, env = s.do(t, http.MethodGet, "/api/deals", strangerTok, nil)
	if resp.StatusCode != http.StatusOK || env.Meta["total_items"] != float64(0) {
		t.Fatalf("stranger list: status = %d, meta = %v", resp.StatusCode, env.Meta)
	}

	if resp, _ := s.do(t, http.MethodPatch, "/api/deals/"+d.ID.String()+"/status", buyerTok, map[string]any{"status": "approved"}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("buyer approve: status = %d, want 403", resp.StatusCode)
	}
	path := "/api/deals/" + d.ID.String() + "/status"
	if resp, env := s.do(t, http.MethodPatch, path, adminTok, map[string]any{"status": "approved"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status = %d, body = %+v", resp.StatusCode, env)
	}
	resp, env = s.do(t, http.MethodPatch, path, adminTok, map[string]any{"status": "completed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: status = %d, body = %+v", resp.StatusCode, env)
	}
	d = decode[models.Deal](t, env.Data)
	if d.Status != models.DealCompleted || d.CompletedAt == nil || !d.CompletedAt.Equal(s.clock.Now()) {
		t.Fatalf("completed deal = %+v", d)
	}

	resp, env = s.do(t, http.MethodPatch, path, adminTok, map[string]any{"status": "approved"})
	if resp.StatusCode != http.StatusBadRequest || env.Code != "INVALID_TRANSITION" {
		t.Fatalf("re-approve: status = %d, code = %s", resp.StatusCode, env.Code)
	}

	resp, env = s.do(t, http.MethodGet, "/api/cars/"+car.ID.String(), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get car: status = %d", resp.StatusCode)
	}
	detail := decode[struct {
		Listing models.Car `json:"listing"`
	}](t, env.Data)
	if detail.Listing.Status != models.ListingSold {
		t.Fatalf("listing status = %s, want sold", detail.Listing.Status)
	}
}

func TestModerationQueue(t *testing.T) {
	s := newTestServer(t)
	owner, ownerTok := s.user(t, models.RoleOwner)
	_, adminTok := s.user(t, models.RoleAdmin)
	_, userTok := s.user(t, models.RoleUser)

	if resp, _ := s.do(t, http.MethodPost, "/api/cars", userTok, carBody()); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user create: status = %d, want 403", resp.StatusCode)
	}
	resp, env := s.do(t, http.MethodPost, "/api/cars", ownerTok, carBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("owner create: status = %d, body = %+v", resp.StatusCode, env)
	}
	car := decode[models.Car](t, env.Data)

	_, env = s.do(t, http.MethodGet, "/api/cars", "", nil)
	if env.Meta["total_items"] != float64(0) {
		t.Fatalf("public list before approval = %v", env.Meta)
	}
	if resp, _ := s.do(t, http.MethodGet, "/api/admin/pending/cars", ownerTok, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("owner on admin route: status = %d, want 403", resp.StatusCode)
	}
	_, env = s.do(t, http.MethodGet, "/api/admin/pending/cars", adminTok, nil)
	if env.Meta["total_items"] != float64(1) {
		t.Fatalf("pending = %v, want 1", env.Meta)
	}

	if resp, env := s.do(t, http.MethodPatch, "/api/admin/cars/"+car.ID.String()+"/approve", adminTok, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status = %d, body = %+v", resp.StatusCode, env)
	}
	_, env = s.do(t, http.MethodGet, "/api/cars", "", nil)
	if env.Meta["total_items"] != float64(1) {
		t.Fatalf("public list after approval = %v", env.Meta)
	}

	_, env = s.do(t, http.MethodGet, "/api/notifications/unread-count", ownerTok, nil)
	count := decode[struct {
		Count int64 `json:"count"`
	}](t, env.Data)
	if count.Count != 1 {
		t.Fatalf("owner %s unread = %d, want 1", owner.ID, count.Count)
	}
}

func TestFavoritesToggle(t *testing.T) {
	s := newTestServer(t)
	_, adminTok := s.user(t, models.RoleAdmin)
	_, userTok := s.user(t, models.RoleUser)
	_, env := s.do(t, http.MethodPost, "/api/cars", adminTok, carBody())
	car := decode[models.Car](t, env.Data)

	type toggled struct {
		IsFavorite     bool  `json:"is_favorite"`
		FavoritesCount int64 `json:"favorites_count"`
	}
	_, env = s.do(t, http.MethodPost, "/api/cars/"+car.ID.String()+"/favorite", userTok, nil)
	if got := decode[toggled](t, env.Data); !got.IsFavorite || got.FavoritesCount != 1 {
		t.Fatalf("first toggle = %+v", got)
	}
	_, env = s.do(t, http.MethodGet, "/api/favorites", userTok, nil)
	if items := decode[[]json.RawMessage](t, env.Data); len(items) != 1 {
		t.Fatalf("favorites = %d, want 1", len(items))
	}
	_, env = s.do(t, http.MethodPost, "/api/cars/"+car.ID.String()+"/favorite", userTok, nil)
	if got := decode[toggled](t, env.Data); got.IsFavorite || got.FavoritesCount != 0 {
		t.Fatalf("second toggle = %+v", got)
	}
}

func TestConsultationBooking(t *testing.T) {
	s := newTestServer(t)
	_, adminTok := s.user(t, models.RoleAdmin)
	_, userTok := s.user(t, models.RoleUser)

	body := map[string]any{
		"category":  "property",
		"name":      "Abebe Kebede",
		"email":     "abebe@example.com",
		"phone":     testutil.Phone(42),
		"date_time": s.clock.Now().Add(48 * time.Hour),
	}
	resp, env := s.do(t, http.MethodPost, "/api/consultations", userTok, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: status = %d, body = %+v", resp.StatusCode, env)
	}
	c := decode[models.Consultation](t, env.Data)

	if resp, _ := s.do(t, http.MethodGet, "/api/consultations", userTok, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user list: status = %d, want 403", resp.StatusCode)
	}
	_, env = s.do(t, http.MethodGet, "/api/consultations/mine", userTok, nil)
	if env.Meta["total_items"] != float64(1) {
		t.Fatalf("mine = %v, want 1", env.Meta)
	}

	resp, env = s.do(t, http.MethodPatch, "/api/consultations/"+c.ID.String()+"/status", adminTok, map[string]any{"status": "accepted"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: status = %d, body = %+v", resp.StatusCode, env)
	}
	resp, env = s.do(t, http.MethodPatch, "/api/consultations/"+c.ID.String()+"/status", adminTok, map[string]any{"status": "pending"})
	if resp.StatusCode != http.StatusBadRequest || env.Code != "INVALID_TRANSITION" {
		t.Fatalf("back to pending: status = %d, code = %s", resp.StatusCode, env.Code)
	}
}

func TestRouteGuardAndHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login?next=%2Fdashboard" {
		t.Fatalf("guard: status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	if resp, env := s.do(t, http.MethodGet, "/api/health", "", nil); resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("health: status = %d, body = %+v", resp.StatusCode, env)
	}
	if resp, env := s.do(t, http.MethodGet, "/api/nope", "", nil); resp.StatusCode != http.StatusNotFound || env.Code != "NOT_FOUND" {
		t.Fatalf("unknown route: status = %d, code = %s", resp.StatusCode, env.Code)
	}
}
