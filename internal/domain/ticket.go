package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketPriority enumerates follow-up urgency. Urgent is a manually set
// override independent of the derived escalation level.
type TicketPriority string

const (
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityVIP    TicketPriority = "VIP"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the persistent record of one customer conversation and its
// support obligations. One ticket per originating chat.
type Ticket struct {
	ID              int64
	ChatID          int64
	Username        string
	FirstName       string
	LastName        string
	Status          TicketStatus
	Priority        TicketPriority
	Unread          bool
	UnreadCount     int
	DueAt           *time.Time
	EscalationLevel EscalationLevel
	SnoozedUntil    *time.Time
	LastPreview     string
	LastActivityAt  time.Time
	LastReplyAt     *time.Time
	CreatedAt       time.Time
}

// AwaitingReply reports whether a staff reply is currently owed.
func (t *Ticket) AwaitingReply() bool {
	return t.Status == TicketStatusOpen && t.DueAt != nil
}

// Snoozed reports whether the ticket is hidden from default listings at now.
func (t *Ticket) Snoozed(now time.Time) bool {
	return t.SnoozedUntil != nil && now.Before(*t.SnoozedUntil)
}

// DisplayLevel returns the escalation level for listings. Urgent priority is
// a manual flag that overrides the derived value in what operators see; the
// stored level stays purely derived from due_at and priority.
func (t *Ticket) DisplayLevel() EscalationLevel {
	if t.Priority == TicketPriorityUrgent && t.DueAt != nil {
		return EscalationUrgent
	}
	return t.EscalationLevel
}

// DisplayName renders a human-readable label for the customer.
func (t *Ticket) DisplayName() string {
	switch {
	case t.FirstName != "" && t.LastName != "":
		return t.FirstName + " " + t.LastName
	case t.FirstName != "":
		return t.FirstName
	case t.Username != "":
		return "@" + t.Username
	default:
		return "unknown"
	}
}
