package repository

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the slice of database/sql used by repositories. Both *sql.DB and
// *sql.Tx satisfy it, so a repository can be re-bound to a transaction when
// several writes must commit together.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamps are persisted as fixed-width UTC text so lexicographic
// comparison in SQL matches chronological order. RFC3339Nano would strip
// trailing sub-second zeros, and "…:05Z" sorts after "…:05.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t := parseTime(raw.String)
	return &t
}
