package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
)

// NoteRepository stores operator annotations per ticket.
type NoteRepository interface {
	Add(ctx context.Context, note *domain.Note) error
	ListByTicket(ctx context.Context, ticketID int64, limit int) ([]domain.Note, error)
}

type noteRepository struct {
	db *sql.DB
}

// NewNoteRepository instantiates the repository.
func NewNoteRepository(db *sql.DB) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) Add(ctx context.Context, note *domain.Note) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (ticket_id, body, created_at) VALUES (?, ?, ?)`,
		note.TicketID, note.Body, fmtTime(note.CreatedAt))
	if err != nil {
		return mapStoreErr(err)
	}
	note.ID, err = res.LastInsertId()
	return err
}

func (r *noteRepository) ListByTicket(ctx context.Context, ticketID int64, limit int) ([]domain.Note, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_id, body, created_at FROM notes
		 WHERE ticket_id=? ORDER BY id DESC LIMIT ?`, ticketID, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		var (
			n         domain.Note
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.TicketID, &n.Body, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
