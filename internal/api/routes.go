package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouteConfig struct {
	AdminUser      string
	AdminPassword  string
	RateLimit      int
	MetricsEnabled bool
}

func SetupRoutes(app *fiber.App, handler *Handler, cfg RouteConfig) {
	// Global middlewares
	app.Use(RequestID())
	app.Use(ErrorHandler())
	app.Use(recover.New())

	// Health checks (sem rate limiting)
	app.Get("/health", handler.HealthCheck)
	app.Get("/ready", handler.ReadinessCheck)

	if cfg.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	app.Get("/swagger/*", swagger.HandlerDefault)

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}

	v1 := app.Group("/api/v1")
	v1.Use(RateLimiter(cfg.RateLimit))
	v1.Use(PrometheusMiddleware())

	v1.Post("/session", handler.Connect)
	v1.Delete("/session", handler.Disconnect)

	// Agregação pura, sem sessão
	v1.Post("/profit/daily", handler.AggregateTrades)

	authed := RequireSession(handler.sessions)
	v1.Get("/trades", authed, handler.GetTrades)
	v1.Get("/profit/daily", authed, handler.GetDailyProfit)
	v1.Get("/profit/summary", authed, handler.GetSummary)

	admin := v1.Group("/admin")
	admin.Use(BasicAuth(cfg.AdminUser, cfg.AdminPassword))
	admin.Post("/load", handler.LoadDataFromFile)
	admin.Delete("/cache/:pattern", handler.InvalidateCache)
	admin.Get("/stats", handler.GetSystemStats)
}
