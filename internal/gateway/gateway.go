package gateway

import (
	"context"
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
)

// InboundMessage is one customer message received from the platform.
type InboundMessage struct {
	ChatID    int64
	MessageID int64
	Username  string
	FirstName string
	LastName  string
	Kind      string
	Preview   string
	ArrivedAt time.Time
}

// InboundHandler consumes received messages. Returning an error does not stop
// the receive loop; the message is logged and polling continues.
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// Adapter is the platform contract. Send failures come back as domain errors
// classified transient (retry later) or permanent (quarantine); the caller
// decides what to do with each class.
type Adapter interface {
	Send(ctx context.Context, payload domain.Payload) error
	ReceiveLoop(ctx context.Context, handler InboundHandler) error
}
