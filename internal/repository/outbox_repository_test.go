package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// only the head entry per ticket is eligible while earlier ones are open
	batch, err := outbox.DequeueBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ids[0], batch[0].EntryID)

	require.NoError(t, outbox.MarkSent(ctx, ids[0]))

	batch, err = outbox.DequeueBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ids[1], batch[0].EntryID)
}

func TestDequeueIndependentTickets(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketA := seedTicket(t, tickets, 100, now)
	ticketB := seedTicket(t, tickets, 200, now)

	idA, err := outbox.Enqueue(ctx, nil, ticketA, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)
	idB, err := outbox.Enqueue(ctx, nil, ticketB, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)

	// one stalled ticket must not block the other
	batch, err := outbox.DequeueBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, idA, batch[0].EntryID)
	assert.Equal(t, idB, batch[1].EntryID)
}

func TestDequeueRespectsNextAttempt(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)
	id, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)

	retryAt := now.Add(time.Minute)
	require.NoError(t, outbox.MarkFailedRetry(ctx, id, "network down", retryAt))

	batch, err := outbox.DequeueBatch(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	batch, err = outbox.DequeueBatch(ctx, retryAt, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.OutboxFailedRetry, batch[0].State)
	assert.Equal(t, 1, batch[0].AttemptCount)
	assert.Equal(t, "network down", batch[0].LastError)
}

func TestPermanentFailureDoesNotBlockTicket(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)
	first, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)
	second, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)

	require.NoError(t, outbox.MarkFailedPermanent(ctx, first, "chat not found"))

	batch, err := outbox.DequeueBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, second, batch[0].EntryID)
}

func TestEnqueueDedupToken(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)
	token := "reply-42"

	first, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, &token, now)
	require.NoError(t, err)
	second, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, &token, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := outbox.ListByState(ctx, domain.OutboxPending, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStateGuards(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)
	id, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)

	require.NoError(t, outbox.MarkSent(ctx, id))

	// SENT is terminal: no transition may leave it
	err = outbox.MarkSent(ctx, id)
	assert.True(t, util.HasCode(err, "CONFLICT"))
	err = outbox.MarkFailedRetry(ctx, id, "x", now)
	assert.True(t, util.HasCode(err, "CONFLICT"))
	err = outbox.MarkFailedPermanent(ctx, id, "x")
	assert.True(t, util.HasCode(err, "CONFLICT"))

	entry, err := outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxSent, entry.State)
}

func TestRequeueOnlyFromQuarantine(t *testing.T) {
	store := newTestStore(t)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)
	id, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)

	err = outbox.Requeue(ctx, id, now)
	assert.True(t, util.HasCode(err, "CONFLICT"))

	require.NoError(t, outbox.MarkFailedPermanent(ctx, id, "bad request"))
	require.NoError(t, outbox.Requeue(ctx, id, now))

	entry, err := outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxPending, entry.State)
	assert.Empty(t, entry.LastError)
}

// Pending entries survive a close/reopen of the database file exactly as
// they were, which is what resuming after a crash relies on.
func TestQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "support.db")
	store := openTestStore(t, path)
	tickets := NewTicketRepository(store.DB)
	outbox := NewOutboxRepository(store.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	ticketID := seedTicket(t, tickets, 100, now)
	first, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)
	second, err := outbox.Enqueue(ctx, nil, ticketID, `{"kind":"text"}`, nil, now)
	require.NoError(t, err)
	require.NoError(t, outbox.MarkSent(ctx, first))

	store.Close()

	reopened := openTestStore(t, path)
	defer reopened.Close()
	outbox = NewOutboxRepository(reopened.DB)

	batch, err := outbox.DequeueBatch(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, second, batch[0].EntryID)

	sent, err := outbox.ListRecentSent(ctx, ticketID, 10)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, first, sent[0].EntryID)
}
