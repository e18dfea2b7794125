package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/persistence"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

const ticketColumns = `id, chat_id, username, first_name, last_name, status, priority,
	unread, unread_count, due_at, escalation_level, snoozed_until,
	last_preview, last_activity_at, last_reply_at, created_at`

// TicketFilter captures listing parameters for the ops surface.
type TicketFilter struct {
	Statuses       []domain.TicketStatus
	UnreadOnly     bool
	IncludeSnoozed bool
	Now            time.Time
	Limit          int
	Offset         int
}

// InboundRecord carries the fields recorded for one inbound message.
type InboundRecord struct {
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
	Preview   string
	ArrivedAt time.Time
	// DueIfUnset becomes due_at only when no reply is currently owed.
	DueIfUnset time.Time
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByChatID(ctx context.Context, chatID int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListAwaitingReply(ctx context.Context) ([]domain.Ticket, error)
	UpsertInbound(ctx context.Context, rec InboundRecord) (*domain.Ticket, bool, error)
	MarkReplied(ctx context.Context, q DBTX, id int64, repliedAt time.Time) error
	SetPriority(ctx context.Context, id int64, priority domain.TicketPriority) error
	SetDueAt(ctx context.Context, id int64, dueAt *time.Time) error
	SetEscalationLevel(ctx context.Context, id int64, level domain.EscalationLevel) error
	MarkRead(ctx context.Context, id int64) error
	MarkUnread(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64) error
	Reopen(ctx context.Context, id int64) error
	Snooze(ctx context.Context, id int64, until time.Time) error
	TouchActivity(ctx context.Context, id int64, at time.Time) error
	CloseInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

type ticketRepository struct {
	db *sql.DB
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(db *sql.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=?`, ticketColumns)
	return scanTicket(r.db.QueryRowContext(ctx, query, id))
}

func (r *ticketRepository) GetByChatID(ctx context.Context, chatID int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE chat_id=?`, ticketColumns)
	return scanTicket(r.db.QueryRowContext(ctx, query, chatID))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = "?"
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "unread=1")
	}
	if !filter.IncludeSnoozed {
		args = append(args, fmtTime(filter.Now))
		clauses = append(clauses, "(snoozed_until IS NULL OR snoozed_until < ?)")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s
		ORDER BY CASE priority WHEN 'URGENT' THEN 0 WHEN 'VIP' THEN 1 ELSE 2 END,
			last_activity_at DESC
		LIMIT ? OFFSET ?`, ticketColumns, strings.Join(clauses, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (r *ticketRepository) ListAwaitingReply(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
		WHERE status='OPEN' AND due_at IS NOT NULL
		ORDER BY due_at ASC`, ticketColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

// UpsertInbound creates or refreshes the ticket for an inbound message in a
// single transaction. A closed ticket reopens; due_at is set only when no
// reply was owed before, so an already-running clock is never restarted.
func (r *ticketRepository) UpsertInbound(ctx context.Context, rec InboundRecord) (*domain.Ticket, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, mapStoreErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanTicket(tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tickets WHERE chat_id=?`, ticketColumns), rec.ChatID))
	created := false
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE tickets SET
				username=?, first_name=?, last_name=?,
				status='OPEN', unread=1, unread_count=unread_count+1,
				due_at=COALESCE(due_at, ?),
				snoozed_until=NULL,
				last_preview=?, last_activity_at=?
			WHERE id=?`,
			rec.Username, rec.FirstName, rec.LastName,
			fmtTime(rec.DueIfUnset), rec.Preview, fmtTime(rec.ArrivedAt), existing.ID)
		if err != nil {
			return nil, false, mapStoreErr(err)
		}
	case util.HasCode(err, "NOT_FOUND") || errors.Is(err, sql.ErrNoRows):
		created = true
		_, err = tx.ExecContext(ctx, `INSERT INTO tickets
				(chat_id, username, first_name, last_name, status, priority,
				 unread, unread_count, due_at, escalation_level,
				 last_preview, last_activity_at, created_at)
			VALUES (?, ?, ?, ?, 'OPEN', 'NORMAL', 1, 1, ?, 'NONE', ?, ?, ?)`,
			rec.ChatID, rec.Username, rec.FirstName, rec.LastName,
			fmtTime(rec.DueIfUnset), rec.Preview, fmtTime(rec.ArrivedAt), fmtTime(rec.ArrivedAt))
		if err != nil {
			return nil, false, mapStoreErr(err)
		}
	default:
		return nil, false, err
	}

	ticket, err := scanTicket(tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tickets WHERE chat_id=?`, ticketColumns), rec.ChatID))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, mapStoreErr(err)
	}
	return ticket, created, nil
}

// MarkReplied clears the reply obligation. It accepts a DBTX so the caller
// can commit it together with the outbox enqueue that produced the reply.
func (r *ticketRepository) MarkReplied(ctx context.Context, q DBTX, id int64, repliedAt time.Time) error {
	if q == nil {
		q = r.db
	}
	return execOne(ctx, q, `UPDATE tickets SET
			due_at=NULL, escalation_level='NONE', unread=0, unread_count=0,
			last_reply_at=?, last_activity_at=?
		WHERE id=?`, fmtTime(repliedAt), fmtTime(repliedAt), id)
}

func (r *ticketRepository) SetPriority(ctx context.Context, id int64, priority domain.TicketPriority) error {
	return execOne(ctx, r.db, `UPDATE tickets SET priority=? WHERE id=?`, priority, id)
}

func (r *ticketRepository) SetDueAt(ctx context.Context, id int64, dueAt *time.Time) error {
	return execOne(ctx, r.db, `UPDATE tickets SET due_at=? WHERE id=?`, fmtTimePtr(dueAt), id)
}

func (r *ticketRepository) SetEscalationLevel(ctx context.Context, id int64, level domain.EscalationLevel) error {
	return execOne(ctx, r.db, `UPDATE tickets SET escalation_level=? WHERE id=?`, level, id)
}

func (r *ticketRepository) MarkRead(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `UPDATE tickets SET unread=0, unread_count=0 WHERE id=?`, id)
}

func (r *ticketRepository) MarkUnread(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `UPDATE tickets SET unread=1,
		unread_count=CASE WHEN unread_count=0 THEN 1 ELSE unread_count END WHERE id=?`, id)
}

func (r *ticketRepository) Close(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `UPDATE tickets SET
		status='CLOSED', due_at=NULL, escalation_level='NONE', unread=0 WHERE id=?`, id)
}

func (r *ticketRepository) Reopen(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, `UPDATE tickets SET status='OPEN' WHERE id=?`, id)
}

// Snooze suppresses the ticket from default listings. It deliberately leaves
// due_at, status and escalation_level untouched.
func (r *ticketRepository) Snooze(ctx context.Context, id int64, until time.Time) error {
	return execOne(ctx, r.db, `UPDATE tickets SET snoozed_until=? WHERE id=?`, fmtTime(until), id)
}

func (r *ticketRepository) TouchActivity(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, r.db, `UPDATE tickets SET last_activity_at=? WHERE id=?`, fmtTime(at), id)
}

func (r *ticketRepository) CloseInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET
			status='CLOSED', due_at=NULL, escalation_level='NONE', unread=0
		WHERE status='OPEN' AND last_activity_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return res.RowsAffected()
}

func execOne(ctx context.Context, q DBTX, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return util.NewNotFound("ticket", nil)
	}
	return nil
}

func mapStoreErr(err error) error {
	if persistence.IsBusy(err) {
		return util.NewStoreBusy(err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t            domain.Ticket
		unread       int
		dueAt        sql.NullString
		snoozedUntil sql.NullString
		lastActivity string
		lastReply    sql.NullString
		createdAt    string
	)
	err := row.Scan(
		&t.ID, &t.ChatID, &t.Username, &t.FirstName, &t.LastName,
		&t.Status, &t.Priority, &unread, &t.UnreadCount,
		&dueAt, &t.EscalationLevel, &snoozedUntil,
		&t.LastPreview, &lastActivity, &lastReply, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.NewNotFound("ticket", nil)
		}
		return nil, mapStoreErr(err)
	}
	t.Unread = unread != 0
	t.DueAt = parseTimePtr(dueAt)
	t.SnoozedUntil = parseTimePtr(snoozedUntil)
	t.LastActivityAt = parseTime(lastActivity)
	t.LastReplyAt = parseTimePtr(lastReply)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func collectTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	tickets := []domain.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}
