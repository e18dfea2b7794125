package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Algovate2025/telegram-support-bot/internal/config"
)

// Store wraps access to the embedded SQLite database. WAL journaling plus a
// bounded busy timeout give the transactional guarantees every other
// component relies on: a commit that returns without error survives a crash.
type Store struct {
	DB *sql.DB
}

// NewStore opens (creating if needed) the database under cfg.DataDir and
// applies the required pragmas. The db file, its -wal and -shm siblings must
// stay on the same durable volume.
func NewStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return open(ctx, cfg.DatabasePath(), cfg.BusyTimeoutMS, logger)
}

// NewStoreAt opens a database at an explicit path. Used by tests.
func NewStoreAt(ctx context.Context, path string, busyTimeoutMS int) (*Store, error) {
	return open(ctx, path, busyTimeoutMS, zap.NewNop())
}

func open(ctx context.Context, path string, busyTimeoutMS int, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))
	return &Store{DB: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Handle returns the underlying sql.DB.
func (s *Store) Handle() *sql.DB {
	if s == nil {
		return nil
	}
	return s.DB
}

// IsBusy reports whether err is SQLite lock contention. Callers map it to
// StoreBusy and retry with backoff rather than treating it as data loss.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
