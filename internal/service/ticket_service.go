package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/gateway"
	"github.com/Algovate2025/telegram-support-bot/internal/observability"
	"github.com/Algovate2025/telegram-support-bot/internal/persistence"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

// TicketService coordinates the ticket state machine and the actions that
// feed the outbox. Every action reading ticket state re-fetches it from the
// store; nothing is cached across calls.
type TicketService struct {
	store      *persistence.Store
	tickets    repository.TicketRepository
	outbox     repository.OutboxRepository
	messages   repository.MessageRepository
	notes      repository.NoteRepository
	dispatcher events.Dispatcher
	policy     domain.EscalationPolicy
	logger     *zap.Logger

	supportChatID int64
	welcomeText   string

	now func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store       *persistence.Store
	TicketRepo  repository.TicketRepository
	OutboxRepo  repository.OutboxRepository
	MessageRepo repository.MessageRepository
	NoteRepo    repository.NoteRepository
	Dispatcher  events.Dispatcher
	Policy      domain.EscalationPolicy
	Logger      *zap.Logger

	SupportChatID int64
	WelcomeText   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		store:         deps.Store,
		tickets:       deps.TicketRepo,
		outbox:        deps.OutboxRepo,
		messages:      deps.MessageRepo,
		notes:         deps.NoteRepo,
		dispatcher:    deps.Dispatcher,
		policy:        deps.Policy,
		logger:        deps.Logger,
		supportChatID: deps.SupportChatID,
		welcomeText:   deps.WelcomeText,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *TicketService) WithClock(now func() time.Time) *TicketService {
	s.now = now
	return s
}

// OnInboundMessage upserts the ticket for an inbound customer message, marks
// it unread and starts the follow-up clock when no reply was owed yet. The
// message is then forwarded to the support chat through the outbox so it
// inherits the no-loss guarantee.
func (s *TicketService) OnInboundMessage(ctx context.Context, msg gateway.InboundMessage) error {
	observability.RecordInbound()

	rec := repository.InboundRecord{
		ChatID:     msg.ChatID,
		Username:   msg.Username,
		FirstName:  msg.FirstName,
		LastName:   msg.LastName,
		Preview:    msg.Preview,
		ArrivedAt:  msg.ArrivedAt,
		DueIfUnset: msg.ArrivedAt.Add(s.policy.Threshold(domain.TicketPriorityNormal)),
	}

	// An existing ticket keeps its own priority clock; recompute against it.
	if existing, err := s.tickets.GetByChatID(ctx, msg.ChatID); err == nil {
		rec.DueIfUnset = s.policy.DueAt(existing.Priority, msg.ArrivedAt, existing.DueAt)
	}

	var (
		ticket  *domain.Ticket
		created bool
	)
	err := retryBusy(ctx, func() error {
		var err error
		ticket, created, err = s.tickets.UpsertInbound(ctx, rec)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.messages.Insert(ctx, &domain.Message{
		TicketID:  ticket.ID,
		Direction: domain.DirectionInbound,
		Kind:      msg.Kind,
		Preview:   msg.Preview,
		CreatedAt: msg.ArrivedAt,
	}); err != nil {
		s.logger.Warn("message log insert failed", zap.Error(err))
	}

	// forward to the support chat for operators to see
	forward := domain.Payload{
		Kind:       domain.PayloadCopy,
		ChatID:     s.supportChatID,
		FromChatID: msg.ChatID,
		MessageID:  msg.MessageID,
	}
	if _, err := s.enqueue(ctx, nil, ticket.ID, forward, nil); err != nil {
		return err
	}

	if created {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.ID,
			Payload: events.TicketCreatedPayload{
				ChatID:   ticket.ChatID,
				Name:     ticket.DisplayName(),
				Priority: ticket.Priority,
				Preview:  msg.Preview,
			},
		})
		if s.welcomeText != "" {
			welcome := domain.Payload{
				Kind:   domain.PayloadText,
				ChatID: ticket.ChatID,
				Text:   s.welcomeText,
			}
			if _, err := s.enqueue(ctx, nil, ticket.ID, welcome, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplyInput describes a staff reply to be queued for delivery.
type ReplyInput struct {
	Text       string
	DedupToken string
}

// OnStaffReply durably queues a reply and clears the follow-up obligation in
// one transaction. Once this returns, the reply cannot be lost: either both
// the outbox entry and the cleared due date committed, or neither did.
func (s *TicketService) OnStaffReply(ctx context.Context, ticketID int64, input ReplyInput) (int64, error) {
	if strings.TrimSpace(input.Text) == "" {
		return 0, util.NewValidationError("reply text required", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return 0, err
	}

	payload := domain.Payload{
		Kind:   domain.PayloadText,
		ChatID: ticket.ChatID,
		Text:   input.Text,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return 0, err
	}

	var dedup *string
	if input.DedupToken != "" {
		dedup = &input.DedupToken
	} else {
		token := uuid.NewString()
		dedup = &token
	}

	now := s.now()
	var entryID int64
	err = retryBusy(ctx, func() error {
		tx, err := s.store.DB.BeginTx(ctx, nil)
		if err != nil {
			return mapBusy(err)
		}
		defer tx.Rollback() //nolint:errcheck

		entryID, err = s.outbox.Enqueue(ctx, tx, ticketID, encoded, dedup, now)
		if err != nil {
			return err
		}
		if err := s.tickets.MarkReplied(ctx, tx, ticketID, now); err != nil {
			return err
		}
		return mapBusy(tx.Commit())
	})
	if err != nil {
		return 0, err
	}
	observability.RecordEnqueued()

	if err := s.messages.Insert(ctx, &domain.Message{
		TicketID:  ticketID,
		Direction: domain.DirectionOutbound,
		Kind:      "text",
		Preview:   preview(input.Text),
		CreatedAt: now,
	}); err != nil {
		s.logger.Warn("message log insert failed", zap.Error(err))
	}
	return entryID, nil
}

// OnStaffReplied records that staff handled the ticket outside the reply
// path (for example with a native platform message); it only clears the
// obligation.
func (s *TicketService) OnStaffReplied(ctx context.Context, ticketID int64) error {
	return retryBusy(ctx, func() error {
		return s.tickets.MarkReplied(ctx, nil, ticketID, s.now())
	})
}

// SetPriority updates priority. A running follow-up clock is not restarted,
// with one exception: escalating to URGENT shortens the fuse so it is never
// longer than a VIP one.
func (s *TicketService) SetPriority(ctx context.Context, ticketID int64, priority domain.TicketPriority) error {
	switch priority {
	case domain.TicketPriorityNormal, domain.TicketPriorityVIP, domain.TicketPriorityUrgent:
	default:
		return util.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := retryBusy(ctx, func() error {
		return s.tickets.SetPriority(ctx, ticketID, priority)
	}); err != nil {
		return err
	}

	if priority == domain.TicketPriorityUrgent && ticket.DueAt != nil {
		capped := s.now().Add(s.policy.ThresholdVIP)
		if capped.Before(*ticket.DueAt) {
			return retryBusy(ctx, func() error {
				return s.tickets.SetDueAt(ctx, ticketID, &capped)
			})
		}
	}
	return nil
}

// Close closes the ticket and clears its obligation.
func (s *TicketService) Close(ctx context.Context, ticketID int64) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := retryBusy(ctx, func() error {
		return s.tickets.Close(ctx, ticketID)
	}); err != nil {
		return err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticketID,
		Payload:  events.TicketClosedPayload{Name: ticket.DisplayName(), Manual: true},
	})
	return nil
}

// Reopen reopens a closed ticket.
func (s *TicketService) Reopen(ctx context.Context, ticketID int64) error {
	return retryBusy(ctx, func() error {
		return s.tickets.Reopen(ctx, ticketID)
	})
}

// Snooze hides the ticket from default listings until now + hours. The
// underlying obligation is untouched.
func (s *TicketService) Snooze(ctx context.Context, ticketID int64, hours int) error {
	if hours <= 0 {
		return util.NewValidationError("snooze hours must be positive", nil)
	}
	until := s.now().Add(time.Duration(hours) * time.Hour)
	return retryBusy(ctx, func() error {
		return s.tickets.Snooze(ctx, ticketID, until)
	})
}

// MarkRead clears the unread flag.
func (s *TicketService) MarkRead(ctx context.Context, ticketID int64) error {
	return retryBusy(ctx, func() error {
		return s.tickets.MarkRead(ctx, ticketID)
	})
}

// MarkUnread restores the unread flag.
func (s *TicketService) MarkUnread(ctx context.Context, ticketID int64) error {
	return retryBusy(ctx, func() error {
		return s.tickets.MarkUnread(ctx, ticketID)
	})
}

// ListInbox returns open tickets for the default operator view.
func (s *TicketService) ListInbox(ctx context.Context, unreadOnly, includeSnoozed bool, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.List(ctx, repository.TicketFilter{
		Statuses:       []domain.TicketStatus{domain.TicketStatusOpen},
		UnreadOnly:     unreadOnly,
		IncludeSnoozed: includeSnoozed,
		Now:            s.now(),
		Limit:          limit,
		Offset:         offset,
	})
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.tickets.GetByID(ctx, ticketID)
}

// ListMessages returns the conversation log for a ticket.
func (s *TicketService) ListMessages(ctx context.Context, ticketID int64, limit int) ([]domain.Message, error) {
	return s.messages.ListByTicket(ctx, ticketID, limit)
}

// SearchMessages searches logged previews.
func (s *TicketService) SearchMessages(ctx context.Context, term string, limit int) ([]domain.Message, error) {
	if strings.TrimSpace(term) == "" {
		return nil, util.NewValidationError("search term required", nil)
	}
	return s.messages.Search(ctx, term, limit)
}

// AddNote stores an operator note.
func (s *TicketService) AddNote(ctx context.Context, ticketID int64, body string) (*domain.Note, error) {
	if strings.TrimSpace(body) == "" {
		return nil, util.NewValidationError("note body required", nil)
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	note := &domain.Note{TicketID: ticketID, Body: body, CreatedAt: s.now()}
	if err := s.notes.Add(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns notes for a ticket.
func (s *TicketService) ListNotes(ctx context.Context, ticketID int64, limit int) ([]domain.Note, error) {
	return s.notes.ListByTicket(ctx, ticketID, limit)
}

// ArchiveInactive closes tickets without activity since the cutoff.
func (s *TicketService) ArchiveInactive(ctx context.Context, inactiveFor time.Duration) (int64, error) {
	cutoff := s.now().Add(-inactiveFor)
	var closed int64
	err := retryBusy(ctx, func() error {
		var err error
		closed, err = s.tickets.CloseInactive(ctx, cutoff)
		return err
	})
	return closed, err
}

func (s *TicketService) enqueue(ctx context.Context, q repository.DBTX, ticketID int64, payload domain.Payload, dedup *string) (int64, error) {
	encoded, err := payload.Encode()
	if err != nil {
		return 0, err
	}
	var entryID int64
	err = retryBusy(ctx, func() error {
		var err error
		entryID, err = s.outbox.Enqueue(ctx, q, ticketID, encoded, dedup, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	observability.RecordEnqueued()
	return entryID, nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func mapBusy(err error) error {
	if err == nil {
		return nil
	}
	if persistence.IsBusy(err) {
		return util.NewStoreBusy(err)
	}
	return err
}

// preview caps the stored excerpt at 100 characters without splitting a
// multi-byte rune.
func preview(text string) string {
	if runes := []rune(text); len(runes) > 100 {
		return string(runes[:100])
	}
	return text
}
