package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
)

// NotificationService turns domain events into operator messages in the
// support chat. Notifications go through the outbox like every other send,
// so an escalation alert survives a crash just as a reply does.
type NotificationService struct {
	outbox        repository.OutboxRepository
	logger        *zap.Logger
	supportChatID int64
	now           func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(outbox repository.OutboxRepository, logger *zap.Logger, supportChatID int64) *NotificationService {
	return &NotificationService{
		outbox:        outbox,
		logger:        logger,
		supportChatID: supportChatID,
		now:           time.Now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventEscalationCrossed, n.handleEscalationCrossed)
	dispatcher.Subscribe(events.EventDeliveryPermanent, n.handleDeliveryPermanent)
	dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
}

func (n *NotificationService) handleEscalationCrossed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EscalationCrossedPayload)
	if !ok {
		return nil
	}
	text := fmt.Sprintf("Follow-up %s: %s (%s), due since %s",
		payload.NewLevel, payload.Name, payload.Priority,
		payload.DueAt.Format(time.RFC3339))
	return n.notify(ctx, event.TicketID, text)
}

func (n *NotificationService) handleDeliveryPermanent(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DeliveryPermanentPayload)
	if !ok {
		return nil
	}
	text := fmt.Sprintf("Delivery failed permanently for entry %d after %d attempts: %s",
		payload.EntryID, payload.AttemptCount, payload.LastError)
	return n.notify(ctx, event.TicketID, text)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	text := fmt.Sprintf("New ticket: %s — %s", payload.Name, payload.Preview)
	return n.notify(ctx, event.TicketID, text)
}

func (n *NotificationService) notify(ctx context.Context, ticketID int64, text string) error {
	payload := domain.Payload{
		Kind:   domain.PayloadText,
		ChatID: n.supportChatID,
		Text:   text,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return err
	}
	err = retryBusy(ctx, func() error {
		_, err := n.outbox.Enqueue(ctx, nil, ticketID, encoded, nil, n.now())
		return err
	})
	if err != nil {
		n.logger.Error("notification enqueue failed",
			zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
	return err
}
