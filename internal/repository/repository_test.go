package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/persistence"
)

func newTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "support.db")
	store := openTestStore(t, path)
	t.Cleanup(store.Close)
	return store
}

// openTestStore opens (or reopens) a store at path and ensures the schema,
// letting crash-recovery tests close and reopen the same file.
func openTestStore(t *testing.T, path string) *persistence.Store {
	t.Helper()
	ctx := context.Background()
	store, err := persistence.NewStoreAt(ctx, path, 5000)
	require.NoError(t, err)
	require.NoError(t, persistence.RunMigrations(ctx, store, zap.NewNop()))
	return store
}

func seedTicket(t *testing.T, repo TicketRepository, chatID int64, arrivedAt time.Time) int64 {
	t.Helper()
	ticket, _, err := repo.UpsertInbound(context.Background(), InboundRecord{
		ChatID:     chatID,
		Username:   "customer",
		FirstName:  "Test",
		Preview:    "hello",
		ArrivedAt:  arrivedAt,
		DueIfUnset: arrivedAt.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return ticket.ID
}
