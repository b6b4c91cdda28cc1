package emulator

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all emulator routes
func SetupRoutes(app *fiber.App, handler *Handler, cfg *Config) {
	app.Use(PrometheusMetricsMiddleware())

	if cfg.RateLimit > 0 {
		app.Use(RateLimiter(cfg.RateLimit))
	}

	// Token endpoints
	app.Post("/oauth2/token", handler.ExchangeToken)
	app.Post("/identitytoolkit/v1/accounts\\:signInWithCustomToken", handler.SignInWithCustomToken)
	app.Post("/securetoken/v1/token", handler.RefreshToken)

	// Document endpoints
	docs := app.Group("/v1/projects/:project/databases/:database")
	if cfg.RequireAuth {
		docs.Use(RequireBearer(handler.auth))
	}
	docs.Get("/*", handler.GetDocuments)
	docs.Post("/*", handler.PostDocuments)
	docs.Patch("/*", handler.PatchDocument)
	docs.Delete("/*", handler.DeleteDocument)

	// Test support: wipe every document
	app.Delete("/emulator/v1/projects/:project/databases/:database/documents", handler.ResetDocuments)

	// Health endpoint (no auth required)
	app.Get("/health", handler.Health)

	// Prometheus metrics endpoint
	if cfg.TelemetryEnabled {
		app.Get(cfg.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "firenest-emulator",
			"version": "1.0.0",
			"status":  "running",
			"endpoints": fiber.Map{
				"documents": fiber.Map{
					"get":    "GET /v1/projects/:project/databases/:database/documents/{path}",
					"list":   "GET /v1/projects/:project/databases/:database/documents/{collection}",
					"create": "POST /v1/projects/:project/databases/:database/documents/{collection}",
					"write":  "PATCH /v1/projects/:project/databases/:database/documents/{path}",
					"delete": "DELETE /v1/projects/:project/databases/:database/documents/{path}",
					"query":  "POST /v1/projects/:project/databases/:database/documents[/{path}]:runQuery",
				},
				"tokens": fiber.Map{
					"service": "POST /oauth2/token",
					"signIn":  "POST /identitytoolkit/v1/accounts:signInWithCustomToken",
					"refresh": "POST /securetoken/v1/token",
				},
				"health":  "GET /health",
				"metrics": "GET " + cfg.MetricsPath,
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return fail(c, notFound("Endpoint not found: %s %s", c.Method(), c.Path()))
	})
}

// NewApp builds the emulator's fiber app. Extra middleware, such as
// logging, runs before the routes.
func NewApp(cfg *Config, store *Store, auth *Authority, middleware ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "firenest emulator",
		ErrorHandler:          ErrorHandler,
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		UnescapePath:          true,
		Immutable:             true,
	})

	SetupMiddleware(app)
	for _, m := range middleware {
		app.Use(m)
	}
	SetupRoutes(app, NewHandler(store, auth), cfg)
	return app
}
