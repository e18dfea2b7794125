package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
)

func TestSweepProgression(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(t0))
	ctx := context.Background()

	require.NoError(t, f.ticketSvc.OnInboundMessage(ctx, inbound(100, "help", t0)))
	ticket, err := f.tickets.GetByChatID(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, f.tickets.SetPriority(ctx, ticket.ID, domain.TicketPriorityVIP))
	due := t0.Add(12 * time.Hour)
	require.NoError(t, f.tickets.SetDueAt(ctx, ticket.ID, &due))

	crossings := f.collect(events.EventEscalationCrossed)

	steps := []struct {
		at   time.Time
		want domain.EscalationLevel
	}{
		{t0.Add(11 * time.Hour), domain.EscalationNone},
		{t0.Add(13 * time.Hour), domain.EscalationDue},     // past due, inside first grace
		{t0.Add(16 * time.Hour), domain.EscalationUrgent},  // past due+3h
		{t0.Add(22 * time.Hour), domain.EscalationOverdue}, // past due+9h
	}

	for _, step := range steps {
		f.escalationSvc.WithClock(fixedClock(step.at))
		_, err := f.escalationSvc.Sweep(ctx)
		require.NoError(t, err)

		got, err := f.tickets.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.EscalationLevel, "at %s", step.at)
	}

	// one crossing event per upward transition
	require.Len(t, *crossings, 3)
	payload := (*crossings)[0].Payload.(events.EscalationCrossedPayload)
	assert.Equal(t, domain.EscalationNone, payload.OldLevel)
	assert.Equal(t, domain.EscalationDue, payload.NewLevel)
}

func TestSweepIdempotent(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(t0))
	ctx := context.Background()

	require.NoError(t, f.ticketSvc.OnInboundMessage(ctx, inbound(100, "help", t0)))

	f.escalationSvc.WithClock(fixedClock(t0.Add(25 * time.Hour)))
	crossings := f.collect(events.EventEscalationCrossed)

	changed, err := f.escalationSvc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	// same clock, same state: nothing changes, nothing is re-published
	changed, err = f.escalationSvc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Len(t, *crossings, 1)
}

func TestSweepIgnoresRepliedTickets(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(t0))
	ctx := context.Background()

	require.NoError(t, f.ticketSvc.OnInboundMessage(ctx, inbound(100, "help", t0)))
	ticket, err := f.tickets.GetByChatID(ctx, 100)
	require.NoError(t, err)
	_, err = f.ticketSvc.OnStaffReply(ctx, ticket.ID, ReplyInput{Text: "done"})
	require.NoError(t, err)

	f.escalationSvc.WithClock(fixedClock(t0.Add(72 * time.Hour)))
	changed, err := f.escalationSvc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	got, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationNone, got.EscalationLevel)
}

func TestSweepSnoozedTicketStillEscalates(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(t0))
	ctx := context.Background()

	require.NoError(t, f.ticketSvc.OnInboundMessage(ctx, inbound(100, "help", t0)))
	ticket, err := f.tickets.GetByChatID(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, f.ticketSvc.Snooze(ctx, ticket.ID, 100))

	f.escalationSvc.WithClock(fixedClock(t0.Add(25 * time.Hour)))
	changed, err := f.escalationSvc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationDue, got.EscalationLevel)
}

func TestNotificationEnqueuedOnCrossing(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, fixedClock(t0))
	ctx := context.Background()

	notifications := NewNotificationService(f.outbox, f.escalationSvc.logger, testSupportChatID)
	notifications.RegisterHandlers(f.dispatcher)

	require.NoError(t, f.ticketSvc.OnInboundMessage(ctx, inbound(100, "help", t0)))
	before, err := f.outbox.ListByState(ctx, domain.OutboxPending, 50)
	require.NoError(t, err)

	f.escalationSvc.WithClock(fixedClock(t0.Add(25 * time.Hour)))
	_, err = f.escalationSvc.Sweep(ctx)
	require.NoError(t, err)

	after, err := f.outbox.ListByState(ctx, domain.OutboxPending, 50)
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)

	payload, err := domain.DecodePayload(after[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, testSupportChatID, payload.ChatID)
	assert.Contains(t, payload.Text, "DUE")
}
