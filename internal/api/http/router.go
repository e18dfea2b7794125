package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Algovate2025/telegram-support-bot/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Outbox  *handlers.OutboxHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	tickets := app.Group("/tickets")
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/search", cfg.Tickets.Search)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/reply", cfg.Tickets.Reply)
	tickets.Put("/:id/priority", cfg.Tickets.SetPriority)
	tickets.Post("/:id/read", cfg.Tickets.MarkRead)
	tickets.Post("/:id/unread", cfg.Tickets.MarkUnread)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Post("/:id/snooze", cfg.Tickets.Snooze)
	tickets.Get("/:id/messages", cfg.Tickets.Messages)
	tickets.Get("/:id/notes", cfg.Tickets.Notes)
	tickets.Post("/:id/notes", cfg.Tickets.AddNote)
	tickets.Get("/:id/sent", cfg.Outbox.RecentSent)

	outbox := app.Group("/outbox")
	outbox.Get("/failed", cfg.Outbox.ListFailed)
	outbox.Post("/:id/requeue", cfg.Outbox.Requeue)
}
