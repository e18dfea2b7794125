package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
)

// MessageRepository keeps the per-ticket conversation log.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID int64, limit int) ([]domain.Message, error)
	Search(ctx context.Context, term string, limit int) ([]domain.Message, error)
}

type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository instantiates the repository.
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (ticket_id, direction, kind, preview, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.TicketID, msg.Direction, msg.Kind, msg.Preview, fmtTime(msg.CreatedAt))
	if err != nil {
		return mapStoreErr(err)
	}
	msg.ID, err = res.LastInsertId()
	return err
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_id, direction, kind, preview, created_at FROM messages
		 WHERE ticket_id=? ORDER BY id DESC LIMIT ?`, ticketID, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *messageRepository) Search(ctx context.Context, term string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_id, direction, kind, preview, created_at FROM messages
		 WHERE preview LIKE ? ORDER BY id DESC LIMIT ?`, "%"+term+"%", limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]domain.Message, error) {
	messages := []domain.Message{}
	for rows.Next() {
		var (
			m         domain.Message
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Direction, &m.Kind, &m.Preview, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
