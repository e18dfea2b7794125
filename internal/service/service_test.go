package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/gateway"
	"github.com/Algovate2025/telegram-support-bot/internal/persistence"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
)

const testSupportChatID int64 = -1001234

type fixture struct {
	store      *persistence.Store
	tickets    repository.TicketRepository
	outbox     repository.OutboxRepository
	dispatcher events.Dispatcher

	ticketSvc     *TicketService
	outboxSvc     *OutboxService
	escalationSvc *EscalationService
}

func newFixture(t *testing.T, now func() time.Time) *fixture {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "support.db")
	store, err := persistence.NewStoreAt(ctx, path, 5000)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, persistence.RunMigrations(ctx, store, zap.NewNop()))

	tickets := repository.NewTicketRepository(store.DB)
	outbox := repository.NewOutboxRepository(store.DB)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	policy := domain.DefaultEscalationPolicy()
	logger := zap.NewNop()

	ticketSvc := NewTicketService(TicketDependencies{
		Store:         store,
		TicketRepo:    tickets,
		OutboxRepo:    outbox,
		MessageRepo:   repository.NewMessageRepository(store.DB),
		NoteRepo:      repository.NewNoteRepository(store.DB),
		Dispatcher:    dispatcher,
		Policy:        policy,
		Logger:        logger,
		SupportChatID: testSupportChatID,
		WelcomeText:   "Hey! Write me your question.",
	}).WithClock(now)

	outboxSvc := NewOutboxService(outbox, dispatcher, DefaultRetryPolicy(), logger).WithClock(now)
	escalationSvc := NewEscalationService(tickets, dispatcher, policy, logger).WithClock(now)

	return &fixture{
		store:         store,
		tickets:       tickets,
		outbox:        outbox,
		dispatcher:    dispatcher,
		ticketSvc:     ticketSvc,
		outboxSvc:     outboxSvc,
		escalationSvc: escalationSvc,
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func inbound(chatID int64, text string, at time.Time) gateway.InboundMessage {
	return gateway.InboundMessage{
		ChatID:    chatID,
		MessageID: 1,
		Username:  "customer",
		FirstName: "Dana",
		Kind:      "text",
		Preview:   text,
		ArrivedAt: at,
	}
}

func (f *fixture) collect(eventType events.EventType) *[]events.Event {
	seen := &[]events.Event{}
	f.dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
		*seen = append(*seen, e)
		return nil
	})
	return seen
}
