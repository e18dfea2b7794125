package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LeaseRepository implements the single-active-worker lease. The lease lives
// in the durable store so it is re-acquired naturally on restart; a second
// process observing a live lease held by someone else must not start its
// delivery loop, since concurrent senders would reorder delivery.
type LeaseRepository interface {
	// Acquire takes or renews the named lease for holder. It returns false
	// when another holder currently owns an unexpired lease.
	Acquire(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

type leaseRepository struct {
	db *sql.DB
}

// NewLeaseRepository instantiates the repository.
func NewLeaseRepository(db *sql.DB) LeaseRepository {
	return &leaseRepository{db: db}
}

func (r *leaseRepository) Acquire(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, mapStoreErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		current   string
		expiresAt string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM leases WHERE name=?`, name).Scan(&current, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)`,
			name, holder, fmtTime(now.Add(ttl))); err != nil {
			return false, mapStoreErr(err)
		}
	case err != nil:
		return false, mapStoreErr(err)
	default:
		if current != holder && now.Before(parseTime(expiresAt)) {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE leases SET holder=?, expires_at=? WHERE name=?`,
			holder, fmtTime(now.Add(ttl)), name); err != nil {
			return false, mapStoreErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, mapStoreErr(err)
	}
	return true, nil
}

func (r *leaseRepository) Release(ctx context.Context, name, holder string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM leases WHERE name=? AND holder=?`, name, holder)
	return mapStoreErr(err)
}
