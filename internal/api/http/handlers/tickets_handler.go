package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Algovate2025/telegram-support-bot/internal/api/dto"
	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/service"
	apperrors "github.com/Algovate2025/telegram-support-bot/pkg/util"
)

// TicketsHandler exposes the operator inbox over HTTP.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService}
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	unreadOnly := c.QueryBool("unread_only", false)
	includeSnoozed := c.QueryBool("include_snoozed", false)
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	tickets, err := h.tickets.ListInbox(c.UserContext(), unreadOnly, includeSnoozed, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummaries(tickets)})
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// Reply handles POST /tickets/:id/reply. The reply is durably queued before
// the response is written; delivery happens asynchronously.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Text == "" {
		return apperrors.NewValidationError("text required", nil)
	}

	entryID, err := h.tickets.OnStaffReply(c.UserContext(), id, service.ReplyInput{
		Text:       req.Text,
		DedupToken: req.DedupToken,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": fiber.Map{"entry_id": entryID},
	})
}

// SetPriority handles PUT /tickets/:id/priority.
func (h *TicketsHandler) SetPriority(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	switch req.Priority {
	case domain.TicketPriorityNormal, domain.TicketPriorityVIP, domain.TicketPriorityUrgent:
	default:
		return apperrors.NewValidationError("priority must be NORMAL, VIP or URGENT", nil)
	}

	if err := h.tickets.SetPriority(c.UserContext(), id, req.Priority); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkRead handles POST /tickets/:id/read.
func (h *TicketsHandler) MarkRead(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	if err := h.tickets.MarkRead(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkUnread handles POST /tickets/:id/unread.
func (h *TicketsHandler) MarkUnread(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	if err := h.tickets.MarkUnread(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Close handles POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	if err := h.tickets.Close(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Reopen handles POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	if err := h.tickets.Reopen(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Snooze handles POST /tickets/:id/snooze.
func (h *TicketsHandler) Snooze(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.SnoozeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Hours <= 0 {
		return apperrors.NewValidationError("hours must be positive", nil)
	}
	if err := h.tickets.Snooze(c.UserContext(), id, req.Hours); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Messages handles GET /tickets/:id/messages.
func (h *TicketsHandler) Messages(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 100)
	messages, err := h.tickets.ListMessages(c.UserContext(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageViews(messages)})
}

// Search handles GET /tickets/search?q=term across all conversation logs.
func (h *TicketsHandler) Search(c *fiber.Ctx) error {
	term := c.Query("q")
	if term == "" {
		return apperrors.NewValidationError("q required", nil)
	}
	limit := c.QueryInt("limit", 50)
	messages, err := h.tickets.SearchMessages(c.UserContext(), term, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageViews(messages)})
}

// AddNote handles POST /tickets/:id/notes.
func (h *TicketsHandler) AddNote(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Body == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	note, err := h.tickets.AddNote(c.UserContext(), id, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NoteView{ID: note.ID, TicketID: note.TicketID, Body: note.Body, CreatedAt: note.CreatedAt},
	})
}

// Notes handles GET /tickets/:id/notes.
func (h *TicketsHandler) Notes(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 100)
	notes, err := h.tickets.ListNotes(c.UserContext(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewNoteViews(notes)})
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", nil)
	}
	return id, nil
}
