// Package server assembles the fiber application: middleware chain, route
// table and handler wiring.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/config"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/handlers"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/metrics"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/routeguard"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/consultation"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/deal"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/listing"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/notification"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/ratelimit"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/storage"
)

type Deps struct {
	Config config.Config
	Log    *zap.SugaredLogger

	Auth          *auth.Service
	Listings      *listing.Service
	Deals         *deal.Service
	Consultations *consultation.Service
	Notifications *notification.Publisher
	Hub           *realtime.Hub

	// Limiter guards the sensitive auth endpoints.
	Limiter *ratelimit.Limiter
	// Throttle is the global per-IP limiter; nil disables it.
	Throttle *middleware.IPRateLimiter

	Health map[string]handlers.Check
}

func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "multimarket",
		ErrorHandler: middleware.ErrorHandler(d.Log),
		BodyLimit:    storage.MaxUploadBytes + 1<<20,
	})

	origins := d.Config.CORSOrigins
	if origins == "" {
		// credentialed CORS cannot use a wildcard origin
		origins = "http://localhost:3000"
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: d.Config.Development()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length, Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining",
		AllowCredentials: true,
	}))
	app.Use(middleware.RequestLogger(d.Log))
	app.Use(metrics.Middleware())
	if d.Throttle != nil {
		app.Use(d.Throttle.Handler())
	}
	app.Use(routeguard.Middleware())

	app.Get("/metrics", metrics.Handler())

	authed := middleware.Authenticate(d.Auth)
	optional := middleware.OptionalAuth(d.Auth)
	adminOnly := middleware.AdminOnly()
	limit := func(scope string) fiber.Handler {
		return middleware.SensitiveLimiter(d.Limiter, scope, d.Log)
	}

	authH := &handlers.AuthHandler{
		Auth:         d.Auth,
		CookieSecure: d.Config.CookieSecure,
		AccessTTL:    d.Config.AccessTTL,
		RefreshTTL:   d.Config.RefreshTTL,
	}
	googleH := &handlers.GoogleOAuthHandler{
		Session:         authH,
		GoogleClientID:  d.Config.GoogleClientID,
		GoogleSecret:    d.Config.GoogleSecret,
		GoogleRedirect:  d.Config.GoogleRedirect,
		FrontendBaseURL: d.Config.FrontendBaseURL,
		Log:             d.Log,
	}
	listingH := &handlers.ListingHandler{Listings: d.Listings}
	dealH := &handlers.DealHandler{Deals: d.Deals}
	adminH := &handlers.AdminHandler{Listings: d.Listings, Auth: d.Auth}
	consultH := &handlers.ConsultationHandler{Consultations: d.Consultations}
	notifH := &handlers.NotificationHandler{Notifications: d.Notifications}
	healthH := &handlers.HealthHandler{Checks: d.Health}
	eventsH := &handlers.EventsHandler{Auth: d.Auth, Hub: d.Hub}

	api := app.Group("/api")
	api.Get("/health", healthH.Health)

	// auth
	a := api.Group("/auth")
	a.Post("/register", limit("register"), authH.Register)
	a.Post("/login", limit("login"), authH.Login)
	a.Post("/refresh", authH.Refresh)
	a.Post("/logout", authH.Logout)
	a.Post("/forgot-password", limit("forgot-password"), authH.ForgotPassword)
	a.Post("/reset-password", limit("reset-password"), authH.ResetPassword)
	a.Post("/verify-email", limit("verify-email"), authH.VerifyEmail)
	a.Post("/resend-verification", limit("resend-verification"), authH.ResendVerification)
	a.Get("/me", authed, authH.Me)
	a.Put("/profile", authed, authH.UpdateProfile)
	a.Put("/change-password", authed, limit("change-password"), authH.ChangePassword)
	a.Post("/deactivate", authed, authH.Deactivate)
	a.Get("/google/start", googleH.GoogleStart)
	a.Get("/google/callback", googleH.GoogleCallback)

	// listings: /api/cars, /api/properties, /api/lands, /api/machines
	for _, kind := range models.AllKinds {
		g := api.Group("/"+kind.Collection(), handlers.ForKind(kind))
		g.Get("/", optional, listingH.List)
		g.Get("/mine", authed, listingH.ListMine)
		g.Get("/:id", optional, listingH.Get)
		g.Post("/", authed, middleware.RequireRoles(models.RoleOwner, models.RoleAdmin), listingH.Create)
		g.Put("/:id", authed, listingH.Update)
		g.Patch("/:id/status", authed, listingH.SetStatus)
		g.Delete("/:id", authed, listingH.Delete)
		g.Post("/:id/favorite", authed, listingH.ToggleFavorite)
		g.Post("/:id/images", authed, listingH.UploadImage)
		g.Delete("/:id/images/*", authed, listingH.RemoveImage)
	}
	api.Get("/favorites", authed, listingH.Favorites)

	// deals
	dg := api.Group("/deals", authed)
	dg.Post("/", dealH.Create)
	dg.Get("/", dealH.List)
	dg.Get("/:id", dealH.Get)
	dg.Patch("/:id/status", dealH.UpdateStatus)
	dg.Post("/:id/rate", dealH.Rate)
	dg.Delete("/:id", adminOnly, dealH.Delete)

	// admin
	ag := api.Group("/admin", authed, adminOnly)
	ag.Get("/pending/:kind", adminH.Pending)
	ag.Get("/users", adminH.Users)
	ag.Patch("/users/:id/active", adminH.SetActive)
	ag.Patch("/users/:id/role", adminH.SetRole)
	ag.Patch("/:kind/:id/approve", adminH.Approve)
	ag.Delete("/:kind/:id/reject", adminH.Reject)

	// consultations
	cg := api.Group("/consultations")
	cg.Post("/", optional, consultH.Create)
	cg.Get("/", authed, adminOnly, consultH.List)
	cg.Get("/mine", authed, consultH.Mine)
	cg.Get("/:id", authed, adminOnly, consultH.Get)
	cg.Patch("/:id/status", authed, adminOnly, consultH.UpdateStatus)

	// notifications
	ng := api.Group("/notifications", authed)
	ng.Get("/", notifH.List)
	ng.Get("/unread-count", notifH.UnreadCount)
	ng.Patch("/read-all", notifH.MarkAllRead)
	ng.Patch("/:id/read", notifH.MarkRead)

	app.Get("/ws/events", eventsH.Upgrade, eventsH.Stream())

	return app
}
