// Package api exposes the ordering core over HTTP.
//
// Identity comes from an HS256 bearer token issued by the auth service; the
// API trusts its user_id and role claims and does no authentication of its
// own. Every response uses the Response envelope; domain error classes map
// to HTTP statuses through StatusFor.
package api

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mrdcvlsc/food-reservation/internal/engine"
)

// Config configures the HTTP app.
type Config struct {
	// JWTSecret verifies bearer tokens. Required.
	JWTSecret []byte

	// Logger receives error logs. Default: slog.Default().
	Logger *slog.Logger

	// AccessLog receives one line per request. Nil disables access logging.
	AccessLog io.Writer
}

// New builds the fiber app serving /api/v1.
func New(e *engine.Engine, cfg Config) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "canteen",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler(cfg.Logger),
	})

	app.Use(recover.New())
	if cfg.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: cfg.AccessLog}))
	}

	h := &handlers{engine: e}

	v1 := app.Group("/api/v1")
	v1.Get("/health", h.health)

	authed := v1.Group("", RequireClaims(cfg.JWTSecret))
	authed.Get("/menu", h.listMenu)
	authed.Get("/wallet", h.getWallet)
	authed.Post("/reservations", h.createReservation)
	authed.Get("/reservations", h.listMyReservations)
	authed.Get("/reservations/:id", h.getReservation)
	authed.Post("/topups", h.submitTopup)
	authed.Get("/topups", h.listMyTopups)

	admin := authed.Group("/admin", RequireAdmin())
	admin.Get("/reservations", h.listReservationsByStatus)
	admin.Post("/reservations/bulk-status", h.bulkSetStatus)
	admin.Post("/reservations/:id/status", h.setStatus)
	admin.Get("/reservations/:id/history", h.history)
	admin.Get("/topups/pending", h.listPendingTopups)
	admin.Post("/topups/:id/decision", h.decideTopup)
	admin.Put("/menu/:id", h.upsertMenuItem)
	admin.Post("/menu/:id/stock", h.adjustStock)
	admin.Delete("/menu/:id", h.deleteMenuItem)
	admin.Get("/alerts", h.listAlerts)
	admin.Post("/reconcile", h.reconcile)

	return app
}
