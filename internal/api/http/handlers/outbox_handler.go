package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Algovate2025/telegram-support-bot/internal/api/dto"
	"github.com/Algovate2025/telegram-support-bot/internal/service"
	apperrors "github.com/Algovate2025/telegram-support-bot/pkg/util"
)

// OutboxHandler exposes the delivery queue for operational inspection:
// listing permanently failed entries, requeueing them, and reviewing
// recent sends.
type OutboxHandler struct {
	outbox *service.OutboxService
}

// NewOutboxHandler constructs handler.
func NewOutboxHandler(outboxService *service.OutboxService) *OutboxHandler {
	return &OutboxHandler{outbox: outboxService}
}

// ListFailed handles GET /outbox/failed.
func (h *OutboxHandler) ListFailed(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	entries, err := h.outbox.ListFailed(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOutboxEntryViews(entries)})
}

// Requeue handles POST /outbox/:id/requeue. Only permanently failed entries
// are eligible; anything else conflicts.
func (h *OutboxHandler) Requeue(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid entry id", nil)
	}
	if err := h.outbox.Requeue(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RecentSent handles GET /tickets/:id/sent, the undo window over recent
// deliveries for one ticket.
func (h *OutboxHandler) RecentSent(c *fiber.Ctx) error {
	ticketID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || ticketID <= 0 {
		return apperrors.NewValidationError("invalid ticket id", nil)
	}
	limit := c.QueryInt("limit", 10)
	entries, err := h.outbox.ListRecentSent(c.UserContext(), ticketID, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOutboxEntryViews(entries)})
}
