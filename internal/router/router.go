package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/jobify-assessment-api/internal/config"
	"github.com/noah-isme/jobify-assessment-api/internal/handler"
	"github.com/noah-isme/jobify-assessment-api/internal/middleware"
	"github.com/noah-isme/jobify-assessment-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler *handler.AssessmentHandler
	HealthChecks      []handler.DependencyCheck
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks...))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.AssessmentHandler != nil {
		assessment := app.Group("/api/v2/applications/:applicationId/assessment",
			jwtMiddleware,
			middleware.RequireRole(middleware.RoleCandidate, middleware.RoleStudent),
		)
		deps.AssessmentHandler.Register(assessment, handler.AssessmentLimits{
			Run:    middleware.RateLimit("assessment-run", cfg.RunRateLimit, time.Minute),
			Events: middleware.RateLimitUnless("assessment-events", cfg.EventRateLimit, time.Minute, handler.CountedProctorEvent),
		})
	}
}
