// Package httpadapter serves the health, readiness and metrics endpoints
// together with the air quality query API.
package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /healthz, /readyz, /metrics and the /api/v1 routes.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger
}

// NewServer creates the Fiber app and registers every route.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reports ReportStore, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "air-quality-etl",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestLogger(logger))

	app.Get("/healthz", adaptor.HTTPHandlerFunc(sharedobs.LivenessHandler()))
	app.Get("/readyz", adaptor.HTTPHandlerFunc(sharedobs.ReadinessHandler(ready)))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	RegisterRoutes(app, reports)

	return &Server{app: app, addr: addr, logger: logger}
}

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Test runs a request through the app without a listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		}
		logger.Debug("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
		)
		return err
	}
}
