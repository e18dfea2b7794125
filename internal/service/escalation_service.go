package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/observability"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
)

// EscalationService recomputes escalation levels for open tickets awaiting a
// reply. The level is a pure function of due_at, priority and the clock, so
// the sweep is idempotent: running it twice without a state change stores the
// same levels and publishes nothing.
type EscalationService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	policy     domain.EscalationPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// NewEscalationService constructs the service.
func NewEscalationService(tickets repository.TicketRepository, dispatcher events.Dispatcher, policy domain.EscalationPolicy, logger *zap.Logger) *EscalationService {
	return &EscalationService{
		tickets:    tickets,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *EscalationService) WithClock(now func() time.Time) *EscalationService {
	s.now = now
	return s
}

// Sweep visits every open ticket with a due date, persists level changes and
// publishes one event per upward crossing. It returns the number of tickets
// whose level changed.
func (s *EscalationService) Sweep(ctx context.Context) (int, error) {
	tickets, err := s.tickets.ListAwaitingReply(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	changed := 0
	for i := range tickets {
		ticket := &tickets[i]
		level := s.policy.Level(ticket.Priority, ticket.DueAt, now)
		if level == ticket.EscalationLevel {
			continue
		}

		if err := retryBusy(ctx, func() error {
			return s.tickets.SetEscalationLevel(ctx, ticket.ID, level)
		}); err != nil {
			s.logger.Error("escalation update failed",
				zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		changed++

		// Crossings are upward by construction while due_at is stable, but
		// guard anyway so a due-date edit mid-sweep cannot publish a
		// downgrade as an alert.
		if level.AtLeast(ticket.EscalationLevel) && ticket.DueAt != nil {
			observability.RecordEscalation(string(level))
			s.publishCrossing(ctx, ticket, level)
		}
	}
	return changed, nil
}

func (s *EscalationService) publishCrossing(ctx context.Context, ticket *domain.Ticket, level domain.EscalationLevel) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventEscalationCrossed,
		TicketID:  ticket.ID,
		Timestamp: s.now(),
		Payload: events.EscalationCrossedPayload{
			Name:     ticket.DisplayName(),
			Priority: ticket.Priority,
			OldLevel: ticket.EscalationLevel,
			NewLevel: level,
			DueAt:    *ticket.DueAt,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.Error(err))
	}
}
