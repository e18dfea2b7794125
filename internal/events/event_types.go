package events

import (
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventEscalationCrossed EventType = "escalation_crossed"
	EventDeliveryPermanent EventType = "delivery_failed_permanent"
	EventTicketClosed      EventType = "ticket_closed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  int64     `json:"ticket_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ChatID   int64                 `json:"chat_id"`
	Name     string                `json:"name"`
	Priority domain.TicketPriority `json:"priority"`
	Preview  string                `json:"preview"`
}

// EscalationCrossedPayload is emitted only on upward level transitions;
// re-observing an unchanged level never publishes.
type EscalationCrossedPayload struct {
	Name     string                 `json:"name"`
	Priority domain.TicketPriority  `json:"priority"`
	OldLevel domain.EscalationLevel `json:"old_level"`
	NewLevel domain.EscalationLevel `json:"new_level"`
	DueAt    time.Time              `json:"due_at"`
}

// DeliveryPermanentPayload surfaces a quarantined outbox entry for
// operator action.
type DeliveryPermanentPayload struct {
	EntryID      int64  `json:"entry_id"`
	AttemptCount int    `json:"attempt_count"`
	LastError    string `json:"last_error"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Name   string `json:"name"`
	Manual bool   `json:"manual"`
}
