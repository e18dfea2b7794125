package dto

import (
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
)

// TicketSummary is the inbox listing row.
type TicketSummary struct {
	ID              int64                  `json:"id"`
	ChatID          int64                  `json:"chat_id"`
	Name            string                 `json:"name"`
	Status          domain.TicketStatus    `json:"status"`
	Priority        domain.TicketPriority  `json:"priority"`
	Unread          bool                   `json:"unread"`
	UnreadCount     int                    `json:"unread_count"`
	EscalationLevel domain.EscalationLevel `json:"escalation_level"`
	DueAt           *time.Time             `json:"due_at"`
	SnoozedUntil    *time.Time             `json:"snoozed_until"`
	LastPreview     string                 `json:"last_preview"`
	LastActivityAt  time.Time              `json:"last_activity_at"`
	CreatedAt       time.Time              `json:"created_at"`
}

// NewTicketSummary maps a ticket to its listing shape. The escalation level
// shown is the display level, so a manual URGENT priority reads as urgent
// even before the derived level catches up.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:              t.ID,
		ChatID:          t.ChatID,
		Name:            t.DisplayName(),
		Status:          t.Status,
		Priority:        t.Priority,
		Unread:          t.Unread,
		UnreadCount:     t.UnreadCount,
		EscalationLevel: t.DisplayLevel(),
		DueAt:           t.DueAt,
		SnoozedUntil:    t.SnoozedUntil,
		LastPreview:     t.LastPreview,
		LastActivityAt:  t.LastActivityAt,
		CreatedAt:       t.CreatedAt,
	}
}

// NewTicketSummaries maps a slice of tickets.
func NewTicketSummaries(tickets []domain.Ticket) []TicketSummary {
	out := make([]TicketSummary, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketSummary(&tickets[i]))
	}
	return out
}

// ReplyRequest queues one staff reply to a ticket.
type ReplyRequest struct {
	Text       string `json:"text"`
	DedupToken string `json:"dedup_token"`
}

// PriorityRequest changes a ticket's priority.
type PriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// SnoozeRequest hides a ticket from the default inbox for a while.
type SnoozeRequest struct {
	Hours int `json:"hours"`
}

// NoteRequest attaches an operator note.
type NoteRequest struct {
	Body string `json:"body"`
}

// MessageView is one conversation log row.
type MessageView struct {
	ID        int64                   `json:"id"`
	TicketID  int64                   `json:"ticket_id"`
	Direction domain.MessageDirection `json:"direction"`
	Kind      string                  `json:"kind"`
	Preview   string                  `json:"preview"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewMessageViews maps conversation log rows.
func NewMessageViews(messages []domain.Message) []MessageView {
	out := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageView{
			ID:        m.ID,
			TicketID:  m.TicketID,
			Direction: m.Direction,
			Kind:      m.Kind,
			Preview:   m.Preview,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

// NoteView is one operator note.
type NoteView struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNoteViews maps notes.
func NewNoteViews(notes []domain.Note) []NoteView {
	out := make([]NoteView, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteView{ID: n.ID, TicketID: n.TicketID, Body: n.Body, CreatedAt: n.CreatedAt})
	}
	return out
}

// OutboxEntryView exposes one queue entry for operational inspection.
type OutboxEntryView struct {
	EntryID       int64              `json:"entry_id"`
	TicketID      int64              `json:"ticket_id"`
	State         domain.OutboxState `json:"state"`
	AttemptCount  int                `json:"attempt_count"`
	NextAttemptAt time.Time          `json:"next_attempt_at"`
	LastError     string             `json:"last_error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewOutboxEntryViews maps queue entries.
func NewOutboxEntryViews(entries []domain.OutboxEntry) []OutboxEntryView {
	out := make([]OutboxEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, OutboxEntryView{
			EntryID:       e.EntryID,
			TicketID:      e.TicketID,
			State:         e.State,
			AttemptCount:  e.AttemptCount,
			NextAttemptAt: e.NextAttemptAt,
			LastError:     e.LastError,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
