package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// schema is applied in full at startup; every statement is idempotent.
// Timestamps are stored as RFC3339 text, compared lexicographically.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tickets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'OPEN',
		priority TEXT NOT NULL DEFAULT 'NORMAL',
		unread INTEGER NOT NULL DEFAULT 0,
		unread_count INTEGER NOT NULL DEFAULT 0,
		due_at TEXT,
		escalation_level TEXT NOT NULL DEFAULT 'NONE',
		snoozed_until TEXT,
		last_preview TEXT NOT NULL DEFAULT '',
		last_activity_at TEXT NOT NULL,
		last_reply_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_entries (
		entry_id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id INTEGER NOT NULL REFERENCES tickets(id),
		payload TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'PENDING',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		dedup_token TEXT UNIQUE,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id INTEGER NOT NULL REFERENCES tickets(id),
		direction TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		preview TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id INTEGER NOT NULL REFERENCES tickets(id),
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_state ON outbox_entries(state, next_attempt_at)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_ticket ON outbox_entries(ticket_id, entry_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status, unread)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id, created_at)`,
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, store *Store, logger *zap.Logger) error {
	for _, stmt := range schema {
		if _, err := store.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	logger.Info("migrations applied", zap.Int("statements", len(schema)))
	return nil
}
