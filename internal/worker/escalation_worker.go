package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/service"
)

// EscalationWorker runs the follow-up sweep on a fixed period. The cadence is
// a tuning parameter; correctness comes from the sweep being idempotent.
type EscalationWorker struct {
	escalations *service.EscalationService
	logger      *zap.Logger
	interval    time.Duration
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(escalations *service.EscalationService, logger *zap.Logger, interval time.Duration) *EscalationWorker {
	return &EscalationWorker{escalations: escalations, logger: logger, interval: interval}
}

// Run sweeps until ctx is done.
func (w *EscalationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		changed, err := w.escalations.Sweep(ctx)
		if err != nil {
			w.logger.Error("escalation sweep failed", zap.Error(err))
			continue
		}
		if changed > 0 {
			w.logger.Info("escalation sweep", zap.Int("changed", changed))
		}
	}
}

// ArchiveWorker closes tickets that have been inactive for the configured
// window.
type ArchiveWorker struct {
	tickets     *service.TicketService
	logger      *zap.Logger
	inactiveFor time.Duration
	interval    time.Duration
}

// NewArchiveWorker constructs the worker.
func NewArchiveWorker(tickets *service.TicketService, logger *zap.Logger, inactiveFor time.Duration) *ArchiveWorker {
	return &ArchiveWorker{
		tickets:     tickets,
		logger:      logger,
		inactiveFor: inactiveFor,
		interval:    time.Hour,
	}
}

// Run archives until ctx is done.
func (w *ArchiveWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		closed, err := w.tickets.ArchiveInactive(ctx, w.inactiveFor)
		if err != nil {
			w.logger.Error("archive sweep failed", zap.Error(err))
			continue
		}
		if closed > 0 {
			w.logger.Info("archived inactive tickets", zap.Int64("count", closed))
		}
	}
}
