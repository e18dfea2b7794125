package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/observability"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
)

// RetryPolicy shapes the delivery backoff: delay grows exponentially from
// Base up to Cap with jitter, and after MaxAttempts an entry is quarantined.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultRetryPolicy matches the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        5 * time.Second,
		Cap:         10 * time.Minute,
		Factor:      2.0,
		MaxAttempts: 10,
	}
}

// NextDelay computes the backoff before the given attempt (1-based), with up
// to 20% jitter to avoid retry storms.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Base)
	for i := 1; i < attempt; i++ {
		delay *= p.Factor
		if delay >= float64(p.Cap) {
			delay = float64(p.Cap)
			break
		}
	}
	jitter := 1 + (rand.Float64()-0.5)*0.4
	jittered := time.Duration(delay * jitter)
	if jittered > p.Cap {
		jittered = p.Cap
	}
	return jittered
}

// OutboxService fronts the durable outbound queue for the delivery worker
// and the ops surface.
type OutboxService struct {
	outbox     repository.OutboxRepository
	dispatcher events.Dispatcher
	policy     RetryPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// NewOutboxService constructs the service.
func NewOutboxService(outbox repository.OutboxRepository, dispatcher events.Dispatcher, policy RetryPolicy, logger *zap.Logger) *OutboxService {
	return &OutboxService{
		outbox:     outbox,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *OutboxService) WithClock(now func() time.Time) *OutboxService {
	s.now = now
	return s
}

// DequeueBatch returns the entries due for a delivery attempt, in order.
func (s *OutboxService) DequeueBatch(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	entries, err := s.outbox.DequeueBatch(ctx, s.now(), limit)
	if err != nil {
		return nil, err
	}
	observability.SetOutboxBacklog(len(entries))
	return entries, nil
}

// MarkSent records a successful delivery.
func (s *OutboxService) MarkSent(ctx context.Context, entryID int64) error {
	if err := retryBusy(ctx, func() error {
		return s.outbox.MarkSent(ctx, entryID)
	}); err != nil {
		return err
	}
	observability.RecordDeliveryOutcome("sent")
	return nil
}

// MarkFailed records a failed attempt. Transient failures reschedule with
// backoff until the attempt budget runs out; permanent ones (and exhausted
// budgets) quarantine the entry and surface it for operator action.
func (s *OutboxService) MarkFailed(ctx context.Context, entry domain.OutboxEntry, sendErr error, permanent bool) error {
	attempt := entry.AttemptCount + 1
	if !permanent && attempt < s.policy.MaxAttempts {
		next := s.now().Add(s.policy.NextDelay(attempt))
		if err := retryBusy(ctx, func() error {
			return s.outbox.MarkFailedRetry(ctx, entry.EntryID, sendErr.Error(), next)
		}); err != nil {
			return err
		}
		observability.RecordDeliveryOutcome("retry")
		return nil
	}

	if err := retryBusy(ctx, func() error {
		return s.outbox.MarkFailedPermanent(ctx, entry.EntryID, sendErr.Error())
	}); err != nil {
		return err
	}
	observability.RecordDeliveryOutcome("permanent")
	s.publishPermanent(ctx, entry, attempt, sendErr)
	return nil
}

// ListFailed returns quarantined entries.
func (s *OutboxService) ListFailed(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	return s.outbox.ListByState(ctx, domain.OutboxFailedPermanent, limit)
}

// Requeue returns a quarantined entry to the queue.
func (s *OutboxService) Requeue(ctx context.Context, entryID int64) error {
	return retryBusy(ctx, func() error {
		return s.outbox.Requeue(ctx, entryID, s.now())
	})
}

// ListRecentSent lists delivered entries for a ticket, newest first.
func (s *OutboxService) ListRecentSent(ctx context.Context, ticketID int64, limit int) ([]domain.OutboxEntry, error) {
	return s.outbox.ListRecentSent(ctx, ticketID, limit)
}

func (s *OutboxService) publishPermanent(ctx context.Context, entry domain.OutboxEntry, attempts int, sendErr error) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventDeliveryPermanent,
		TicketID:  entry.TicketID,
		Timestamp: s.now(),
		Payload: events.DeliveryPermanentPayload{
			EntryID:      entry.EntryID,
			AttemptCount: attempts,
			LastError:    sendErr.Error(),
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.Error(err))
	}
}
