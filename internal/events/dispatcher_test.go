package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishInvokesSubscribersInOrder(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var got []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, _ Event) error {
		got = append(got, "first")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, _ Event) error {
		got = append(got, "second")
		return nil
	})
	d.Subscribe(EventTicketClosed, func(_ context.Context, _ Event) error {
		got = append(got, "other type")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestPublishLogsHandlerErrorAndContinues(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewInMemoryDispatcher(zap.New(core))

	var reached bool
	d.Subscribe(EventEscalationCrossed, func(_ context.Context, _ Event) error {
		return errors.New("notification enqueue failed")
	})
	d.Subscribe(EventEscalationCrossed, func(_ context.Context, _ Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventEscalationCrossed, TicketID: 42})
	require.NoError(t, err)
	assert.True(t, reached, "later handlers must still run after one fails")

	entries := logs.FilterMessage("event handler failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ContextMap()["ticket_id"])
}
