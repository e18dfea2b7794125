package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

const outboxColumns = `entry_id, ticket_id, payload, state, attempt_count,
	next_attempt_at, dedup_token, last_error, created_at`

// OutboxRepository persists the durable outbound queue. Entries are
// append-only; terminal rows are retained for audit and undo.
type OutboxRepository interface {
	// Enqueue appends a PENDING entry. With a dedup token, a duplicate call
	// returns the already-queued entry id instead of inserting again. Passing
	// a transaction as q commits the entry atomically with its producer.
	Enqueue(ctx context.Context, q DBTX, ticketID int64, payload string, dedupToken *string, now time.Time) (int64, error)
	// DequeueBatch returns due PENDING/FAILED_RETRYABLE entries in entry_id
	// order. An entry is withheld while an earlier entry of the same ticket
	// is still pending or awaiting its retry window, preserving per-ticket
	// delivery order. It does not mutate state.
	DequeueBatch(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error)
	Get(ctx context.Context, entryID int64) (*domain.OutboxEntry, error)
	MarkSent(ctx context.Context, entryID int64) error
	MarkFailedRetry(ctx context.Context, entryID int64, sendErr string, nextAttemptAt time.Time) error
	MarkFailedPermanent(ctx context.Context, entryID int64, sendErr string) error
	// Requeue returns a quarantined entry to PENDING (operator action).
	Requeue(ctx context.Context, entryID int64, now time.Time) error
	ListByState(ctx context.Context, state domain.OutboxState, limit int) ([]domain.OutboxEntry, error)
	ListRecentSent(ctx context.Context, ticketID int64, limit int) ([]domain.OutboxEntry, error)
}

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository instantiates the repository.
func NewOutboxRepository(db *sql.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, q DBTX, ticketID int64, payload string, dedupToken *string, now time.Time) (int64, error) {
	if q == nil {
		q = r.db
	}
	if dedupToken != nil {
		var existing int64
		err := q.QueryRowContext(ctx,
			`SELECT entry_id FROM outbox_entries WHERE dedup_token=?`, *dedupToken).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, mapStoreErr(err)
		}
	}

	var token sql.NullString
	if dedupToken != nil {
		token = sql.NullString{String: *dedupToken, Valid: true}
	}
	res, err := q.ExecContext(ctx, `INSERT INTO outbox_entries
			(ticket_id, payload, state, attempt_count, next_attempt_at, dedup_token, created_at)
		VALUES (?, ?, 'PENDING', 0, ?, ?, ?)`,
		ticketID, payload, fmtTime(now), token, fmtTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") && dedupToken != nil {
			var existing int64
			if serr := q.QueryRowContext(ctx,
				`SELECT entry_id FROM outbox_entries WHERE dedup_token=?`, *dedupToken).Scan(&existing); serr == nil {
				return existing, nil
			}
		}
		return 0, mapStoreErr(err)
	}
	return res.LastInsertId()
}

func (r *outboxRepository) DequeueBatch(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM outbox_entries o
		WHERE o.state IN ('PENDING','FAILED_RETRYABLE')
		  AND o.next_attempt_at <= ?
		  AND NOT EXISTS (
			SELECT 1 FROM outbox_entries prior
			WHERE prior.ticket_id = o.ticket_id
			  AND prior.entry_id < o.entry_id
			  AND prior.state IN ('PENDING','FAILED_RETRYABLE')
		  )
		ORDER BY o.entry_id ASC
		LIMIT ?`, outboxColumns)
	rows, err := r.db.QueryContext(ctx, query, fmtTime(now), limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectOutboxEntries(rows)
}

func (r *outboxRepository) Get(ctx context.Context, entryID int64) (*domain.OutboxEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM outbox_entries WHERE entry_id=?`, outboxColumns)
	entry, err := scanOutboxEntry(r.db.QueryRowContext(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.NewNotFound("outbox entry", nil)
		}
		return nil, mapStoreErr(err)
	}
	return entry, nil
}

// MarkSent is a terminal transition; the state guard keeps an entry from ever
// leaving SENT.
func (r *outboxRepository) MarkSent(ctx context.Context, entryID int64) error {
	return r.transition(ctx, entryID,
		`UPDATE outbox_entries SET state='SENT', last_error=''
		 WHERE entry_id=? AND state IN ('PENDING','FAILED_RETRYABLE')`)
}

func (r *outboxRepository) MarkFailedRetry(ctx context.Context, entryID int64, sendErr string, nextAttemptAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_entries SET state='FAILED_RETRYABLE',
			attempt_count=attempt_count+1, next_attempt_at=?, last_error=?
		 WHERE entry_id=? AND state IN ('PENDING','FAILED_RETRYABLE')`,
		fmtTime(nextAttemptAt), sendErr, entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	return affectedOne(res)
}

func (r *outboxRepository) MarkFailedPermanent(ctx context.Context, entryID int64, sendErr string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_entries SET state='FAILED_PERMANENT',
			attempt_count=attempt_count+1, last_error=?
		 WHERE entry_id=? AND state IN ('PENDING','FAILED_RETRYABLE')`,
		sendErr, entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	return affectedOne(res)
}

func (r *outboxRepository) Requeue(ctx context.Context, entryID int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_entries SET state='PENDING', next_attempt_at=?, last_error=''
		 WHERE entry_id=? AND state='FAILED_PERMANENT'`,
		fmtTime(now), entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	return affectedOne(res)
}

func (r *outboxRepository) ListByState(ctx context.Context, state domain.OutboxState, limit int) ([]domain.OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM outbox_entries WHERE state=?
		ORDER BY entry_id DESC LIMIT ?`, outboxColumns)
	rows, err := r.db.QueryContext(ctx, query, state, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectOutboxEntries(rows)
}

func (r *outboxRepository) ListRecentSent(ctx context.Context, ticketID int64, limit int) ([]domain.OutboxEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM outbox_entries
		WHERE ticket_id=? AND state='SENT'
		ORDER BY entry_id DESC LIMIT ?`, outboxColumns)
	rows, err := r.db.QueryContext(ctx, query, ticketID, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectOutboxEntries(rows)
}

func (r *outboxRepository) transition(ctx context.Context, entryID int64, query string) error {
	res, err := r.db.ExecContext(ctx, query, entryID)
	if err != nil {
		return mapStoreErr(err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return util.NewConflict("outbox entry not in an eligible state", nil)
	}
	return nil
}

func scanOutboxEntry(row rowScanner) (*domain.OutboxEntry, error) {
	var (
		e           domain.OutboxEntry
		nextAttempt string
		token       sql.NullString
		createdAt   string
	)
	err := row.Scan(&e.EntryID, &e.TicketID, &e.Payload, &e.State,
		&e.AttemptCount, &nextAttempt, &token, &e.LastError, &createdAt)
	if err != nil {
		return nil, err
	}
	e.NextAttemptAt = parseTime(nextAttempt)
	if token.Valid {
		e.DedupToken = &token.String
	}
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func collectOutboxEntries(rows *sql.Rows) ([]domain.OutboxEntry, error) {
	entries := []domain.OutboxEntry{}
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}
