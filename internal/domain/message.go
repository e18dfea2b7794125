package domain

import "time"

// MessageDirection marks who produced a logged message.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "in"
	DirectionOutbound MessageDirection = "out"
)

// Message is one row of the per-ticket conversation log. Previews are
// truncated; full media stays with the platform.
type Message struct {
	ID        int64
	TicketID  int64
	Direction MessageDirection
	Kind      string
	Preview   string
	CreatedAt time.Time
}

// Note is a free-form operator annotation on a ticket.
type Note struct {
	ID        int64
	TicketID  int64
	Body      string
	CreatedAt time.Time
}
