package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/events"
	"github.com/Algovate2025/telegram-support-bot/internal/gateway"
	"github.com/Algovate2025/telegram-support-bot/internal/persistence"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
	"github.com/Algovate2025/telegram-support-bot/internal/service"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

// fakeAdapter records sends and fails on demand.
type fakeAdapter struct {
	mu     sync.Mutex
	sent   []domain.Payload
	fail   map[int64]error // keyed by ChatID
	calls  int
	onSend func(domain.Payload)
}

func (f *fakeAdapter) Send(_ context.Context, payload domain.Payload) error {
	f.mu.Lock()
	f.calls++
	hook := f.onSend
	if err, ok := f.fail[payload.ChatID]; ok {
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	if hook != nil {
		hook(payload)
	}
	return nil
}

func (f *fakeAdapter) ReceiveLoop(ctx context.Context, _ gateway.InboundHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		texts = append(texts, p.Text)
	}
	return texts
}

type workerFixture struct {
	store   *persistence.Store
	path    string
	tickets repository.TicketRepository
	outbox  repository.OutboxRepository
	leases  repository.LeaseRepository
	svc     *service.OutboxService
	adapter *fakeAdapter
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "support.db")
	store, err := persistence.NewStoreAt(ctx, path, 5000)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, persistence.RunMigrations(ctx, store, zap.NewNop()))

	outbox := repository.NewOutboxRepository(store.DB)
	return &workerFixture{
		store:   store,
		path:    path,
		tickets: repository.NewTicketRepository(store.DB),
		outbox:  outbox,
		leases:  repository.NewLeaseRepository(store.DB),
		svc:     service.NewOutboxService(outbox, events.NewInMemoryDispatcher(zap.NewNop()), service.DefaultRetryPolicy(), zap.NewNop()),
		adapter: &fakeAdapter{fail: map[int64]error{}},
	}
}

func (f *workerFixture) worker() *DeliveryWorker {
	return NewDeliveryWorker(f.svc, f.leases, f.adapter, zap.NewNop(), time.Second, 20)
}

func (f *workerFixture) seed(t *testing.T, chatID int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	ticket, _, err := f.tickets.UpsertInbound(context.Background(), repository.InboundRecord{
		ChatID: chatID, Preview: "hi", ArrivedAt: now, DueIfUnset: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return ticket.ID
}

func (f *workerFixture) enqueueText(t *testing.T, ticketID, chatID int64, text string) int64 {
	t.Helper()
	encoded, err := domain.Payload{Kind: domain.PayloadText, ChatID: chatID, Text: text}.Encode()
	require.NoError(t, err)
	id, err := f.outbox.Enqueue(context.Background(), nil, ticketID, encoded, nil, time.Now().UTC())
	require.NoError(t, err)
	return id
}

func TestDrainDeliversInOrder(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	ticketID := f.seed(t, 100)

	f.enqueueText(t, ticketID, 100, "first")
	f.enqueueText(t, ticketID, 100, "second")
	f.enqueueText(t, ticketID, 100, "third")

	w := f.worker()
	// head-of-line: one entry per ticket per cycle
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Drain(ctx))
	}

	assert.Equal(t, []string{"first", "second", "third"}, f.adapter.sentTexts())
}

func TestDrainTransientFailureRetriesLater(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	ticketID := f.seed(t, 100)
	id := f.enqueueText(t, ticketID, 100, "hello")

	f.adapter.fail[100] = util.NewSendTransient(assert.AnError)
	w := f.worker()
	require.NoError(t, w.Drain(ctx))

	entry, err := f.outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxFailedRetry, entry.State)
	assert.Equal(t, 1, entry.AttemptCount)
	assert.True(t, entry.NextAttemptAt.After(time.Now().UTC()))

	// not due yet, so a second drain sends nothing
	require.NoError(t, w.Drain(ctx))
	entry, err = f.outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.AttemptCount)
}

func TestDrainPermanentFailureQuarantines(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	ticketID := f.seed(t, 100)
	blocked := f.enqueueText(t, ticketID, 100, "first")
	next := f.enqueueText(t, ticketID, 100, "second")

	f.adapter.fail[100] = util.NewSendPermanent(assert.AnError)
	w := f.worker()
	require.NoError(t, w.Drain(ctx))

	entry, err := f.outbox.Get(ctx, blocked)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxFailedPermanent, entry.State)

	// the quarantined entry no longer blocks the ticket
	delete(f.adapter.fail, 100)
	require.NoError(t, w.Drain(ctx))
	entry, err = f.outbox.Get(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxSent, entry.State)
}

func TestDrainQuarantinesUndecodablePayload(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	ticketID := f.seed(t, 100)

	id, err := f.outbox.Enqueue(ctx, nil, ticketID, "{not json", nil, time.Now().UTC())
	require.NoError(t, err)

	w := f.worker()
	require.NoError(t, w.Drain(ctx))

	entry, err := f.outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxFailedPermanent, entry.State)
	assert.Zero(t, f.adapter.calls)
}

func TestDrainResumesAfterReopen(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	ticketID := f.seed(t, 100)
	f.enqueueText(t, ticketID, 100, "queued before crash")

	// simulate a crash between enqueue and delivery
	f.store.Close()
	store, err := persistence.NewStoreAt(ctx, f.path, 5000)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, persistence.RunMigrations(ctx, store, zap.NewNop()))

	outbox := repository.NewOutboxRepository(store.DB)
	svc := service.NewOutboxService(outbox, events.NewInMemoryDispatcher(zap.NewNop()), service.DefaultRetryPolicy(), zap.NewNop())
	adapter := &fakeAdapter{fail: map[int64]error{}}
	w := NewDeliveryWorker(svc, repository.NewLeaseRepository(store.DB), adapter, zap.NewNop(), time.Second, 20)

	require.NoError(t, w.Drain(ctx))
	assert.Equal(t, []string{"queued before crash"}, adapter.sentTexts())
}

func TestDrainRequiresLease(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	ticketID := f.seed(t, 100)
	id := f.enqueueText(t, ticketID, 100, "hello")

	held, err := f.leases.Acquire(ctx, "delivery-worker", "other-process", time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, held)

	w := f.worker()
	err = w.Drain(ctx)
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.Zero(t, f.adapter.calls)

	entry, err := f.outbox.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxPending, entry.State)
}

func TestDrainStopsWhenLeaseLostMidBatch(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	firstTicket := f.seed(t, 100)
	secondTicket := f.seed(t, 200)
	f.enqueueText(t, firstTicket, 100, "delivered")
	stranded := f.enqueueText(t, secondTicket, 200, "must wait for the new holder")

	// the first send stalls long enough for the lease to expire and another
	// process to take it over
	f.adapter.onSend = func(domain.Payload) {
		held, err := f.leases.Acquire(ctx, "delivery-worker", "takeover-process", time.Minute, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.True(t, held)
	}

	w := f.worker()
	err := w.Drain(ctx)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// exactly one send happened; the rest of the batch is left for the holder
	assert.Equal(t, []string{"delivered"}, f.adapter.sentTexts())
	entry, err := f.outbox.Get(ctx, stranded)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxPending, entry.State)
}

func TestSecondWorkerRefusesLease(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	held, err := f.leases.Acquire(ctx, "delivery-worker", "other-process", time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, held)

	w := f.worker()
	err = w.Run(ctx)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestLeaseExpiryAllowsTakeover(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	now := time.Now()

	held, err := f.leases.Acquire(ctx, "delivery-worker", "dead-process", time.Minute, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.True(t, held)

	held, err = f.leases.Acquire(ctx, "delivery-worker", "new-process", time.Minute, now)
	require.NoError(t, err)
	assert.True(t, held)
}
