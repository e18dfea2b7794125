package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

// retryBusy re-runs op while it fails with StoreBusy. Lock contention is
// transient by contract and must never surface as data loss; anything else
// aborts immediately.
func retryBusy(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !util.IsStoreBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
