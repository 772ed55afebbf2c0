package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

// UnbalancedLister reports ledger events whose sides differ.
type UnbalancedLister interface {
	UnbalancedEvents(ctx context.Context) ([]billing.EventBalance, error)
}

// GLIntegrityJob checks that every ledger event balances.
type GLIntegrityJob struct {
	Ledger  UnbalancedLister
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// Handle executes TaskGLIntegrity. An imbalance is not retried; it needs a human.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("gl integrity: handler not configured")
	}
	_, err := j.Run(ctx)
	if errors.Is(err, billing.ErrLedgerImbalance) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Run lists unbalanced events and fails with ErrLedgerImbalance when any exist.
// A sweep already running on another worker makes it return nothing.
func (j *GLIntegrityJob) Run(ctx context.Context) (_ []billing.EventBalance, err error) {
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", "gl_integrity"))

	if j.Redis != nil {
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		lock, lerr := cache.AcquireLock(ctx, j.Redis, shared.GLIntegrityLockKey, ttl)
		if errors.Is(lerr, cache.ErrLockHeld) {
			logger.Info("gl integrity sweep already running elsewhere")
			return nil, nil
		}
		if lerr != nil {
			return nil, lerr
		}
		defer func() {
			if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				logger.Warn("release gl integrity lock", slog.Any("error", rerr))
			}
		}()
	}

	events, err := j.Ledger.UnbalancedEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("gl integrity: %w", err)
	}
	j.Metrics.SetUnbalanced(len(events))
	for _, ev := range events {
		logger.Error("unbalanced ledger event",
			slog.String("event_ref", ev.EventRef.String()),
			slog.String("debit", ev.Debit.StringFixed(2)),
			slog.String("credit", ev.Credit.StringFixed(2)))
	}
	if len(events) > 0 {
		return events, fmt.Errorf("%w: %d events", billing.ErrLedgerImbalance, len(events))
	}
	logger.Info("GL integrity check passed")
	return nil, nil
}
