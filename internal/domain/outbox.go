package domain

import (
	"encoding/json"
	"time"
)

// OutboxState enumerates delivery states. An entry never leaves SENT, and
// rows are retained rather than deleted so the queue is auditable.
type OutboxState string

const (
	OutboxPending         OutboxState = "PENDING"
	OutboxSent            OutboxState = "SENT"
	OutboxFailedRetry     OutboxState = "FAILED_RETRYABLE"
	OutboxFailedPermanent OutboxState = "FAILED_PERMANENT"
)

// PayloadKind selects how the gateway renders an outbound send.
type PayloadKind string

const (
	PayloadText PayloadKind = "text"
	PayloadCopy PayloadKind = "copy"
)

// Payload is the opaque content descriptor carried by an outbox entry. The
// gateway interprets it; the outbox never does.
type Payload struct {
	Kind       PayloadKind `json:"kind"`
	ChatID     int64       `json:"chat_id"`
	Text       string      `json:"text,omitempty"`
	FromChatID int64       `json:"from_chat_id,omitempty"`
	MessageID  int64       `json:"message_id,omitempty"`
	ThreadID   int64       `json:"thread_id,omitempty"`
}

// Encode serializes the payload for storage.
func (p Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodePayload parses a stored payload.
func DecodePayload(raw string) (Payload, error) {
	var p Payload
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}

// OutboxEntry is one durable outbound send. entry_id is monotonically
// increasing and defines delivery order within a ticket.
type OutboxEntry struct {
	EntryID       int64
	TicketID      int64
	Payload       string
	State         OutboxState
	AttemptCount  int
	NextAttemptAt time.Time
	DedupToken    *string
	LastError     string
	CreatedAt     time.Time
}

// Terminal reports whether the entry will never be attempted again.
func (e *OutboxEntry) Terminal() bool {
	return e.State == OutboxSent || e.State == OutboxFailedPermanent
}
