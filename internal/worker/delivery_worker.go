package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Algovate2025/telegram-support-bot/internal/domain"
	"github.com/Algovate2025/telegram-support-bot/internal/gateway"
	"github.com/Algovate2025/telegram-support-bot/internal/observability"
	"github.com/Algovate2025/telegram-support-bot/internal/repository"
	"github.com/Algovate2025/telegram-support-bot/internal/service"
	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

const deliveryLease = "delivery-worker"

// ErrLeaseHeld is returned when another process owns the delivery lease.
var ErrLeaseHeld = errors.New("delivery lease held by another process")

// DeliveryWorker drains the outbox against the gateway. Exactly one instance
// may run: delivery state lives entirely in the store, and a second sender
// would reorder messages, so the loop holds a store-backed lease for the
// process lifetime and refuses to start while someone else owns it.
type DeliveryWorker struct {
	outbox   *service.OutboxService
	leases   repository.LeaseRepository
	adapter  gateway.Adapter
	logger   *zap.Logger
	interval time.Duration
	batch    int
	holder   string
	leaseTTL time.Duration
}

// NewDeliveryWorker constructs the worker.
func NewDeliveryWorker(outbox *service.OutboxService, leases repository.LeaseRepository, adapter gateway.Adapter, logger *zap.Logger, interval time.Duration, batch int) *DeliveryWorker {
	ttl := 3 * interval
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	return &DeliveryWorker{
		outbox:   outbox,
		leases:   leases,
		adapter:  adapter,
		logger:   logger,
		interval: interval,
		batch:    batch,
		holder:   uuid.NewString(),
		leaseTTL: ttl,
	}
}

// Run acquires the lease and drains until ctx is done. On restart the first
// DequeueBatch naturally picks up whatever the previous run left PENDING or
// FAILED_RETRYABLE; nothing about delivery is kept in memory.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	ok, err := w.leases.Acquire(ctx, deliveryLease, w.holder, w.leaseTTL, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}
	defer func() {
		if err := w.leases.Release(context.Background(), deliveryLease, w.holder); err != nil {
			w.logger.Warn("lease release failed", zap.Error(err))
		}
	}()

	w.logger.Info("delivery worker started", zap.String("holder", w.holder))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ok, err := w.leases.Acquire(ctx, deliveryLease, w.holder, w.leaseTTL, time.Now())
		if err != nil {
			w.logger.Warn("lease renewal failed", zap.Error(err))
			continue
		}
		if !ok {
			// someone took over; stop rather than double-send
			return ErrLeaseHeld
		}

		if err := w.Drain(ctx); err != nil {
			if errors.Is(err, ErrLeaseHeld) {
				return err
			}
			w.logger.Error("drain cycle failed", zap.Error(err))
		}
	}
}

// Drain runs one delivery cycle. Exported so tests and the ops surface can
// trigger a cycle directly. Lease ownership is re-verified (and its TTL
// renewed) before every send: a batch stalled on a slow gateway call could
// otherwise outlive the lease, and once another process has taken over,
// finishing the batch would interleave two senders and reorder delivery.
func (w *DeliveryWorker) Drain(ctx context.Context) error {
	entries, err := w.outbox.DequeueBatch(ctx, w.batch)
	if err != nil {
		return err
	}

	for i := range entries {
		entry := entries[i]

		ok, err := w.leases.Acquire(ctx, deliveryLease, w.holder, w.leaseTTL, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrLeaseHeld
		}

		observability.RecordDeliveryAttempt()

		payload, err := domain.DecodePayload(entry.Payload)
		if err != nil {
			// undecodable rows can never send; quarantine them
			if merr := w.outbox.MarkFailed(ctx, entry, err, true); merr != nil {
				w.logger.Error("quarantine failed", zap.Int64("entry_id", entry.EntryID), zap.Error(merr))
			}
			continue
		}

		sendErr := w.adapter.Send(ctx, payload)
		switch {
		case sendErr == nil:
			if err := w.outbox.MarkSent(ctx, entry.EntryID); err != nil {
				w.logger.Error("mark sent failed", zap.Int64("entry_id", entry.EntryID), zap.Error(err))
			}
		case util.HasCode(sendErr, "SEND_PERMANENT"):
			w.logger.Warn("permanent send failure",
				zap.Int64("entry_id", entry.EntryID), zap.Error(sendErr))
			if err := w.outbox.MarkFailed(ctx, entry, sendErr, true); err != nil {
				w.logger.Error("mark failed errored", zap.Int64("entry_id", entry.EntryID), zap.Error(err))
			}
		default:
			w.logger.Info("transient send failure, will retry",
				zap.Int64("entry_id", entry.EntryID),
				zap.Int("attempt", entry.AttemptCount+1), zap.Error(sendErr))
			if err := w.outbox.MarkFailed(ctx, entry, sendErr, false); err != nil {
				w.logger.Error("mark failed errored", zap.Int64("entry_id", entry.EntryID), zap.Error(err))
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
