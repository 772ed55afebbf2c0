package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/invoices"
	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

// InvoiceCreator bills the active lease of a unit.
type InvoiceCreator interface {
	CreateInvoiceForUnitLease(ctx context.Context, unitID int64) (invoices.Result, error)
}

// TickSummary reports one tick.
type TickSummary struct {
	Due      int
	Created  int
	Skipped  int
	Failed   int
	Halted   []int64
	LockHeld bool
}

// InvoiceTickJob selects due leases and bills them concurrently, one
// transaction per lease.
type InvoiceTickJob struct {
	Leases       billing.LeaseStore
	Engine       InvoiceCreator
	Redis        *redis.Client
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	Concurrency  int
	LeaseTimeout time.Duration
	LockTTL      time.Duration
	Clock        calendar.Clock
}

// Handle executes TaskBillingTick.
func (j *InvoiceTickJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("billing tick: handler not configured")
	}
	var payload BillingTickPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload.PropertyID)
	return err
}

// Run bills every lease whose next invoice date is on or before today in its
// property's zone. It fails when any lease failed so the task is retried; leases
// already billed are no longer due on the retry.
func (j *InvoiceTickJob) Run(ctx context.Context, propertyID int64) (summary TickSummary, err error) {
	tracker := j.Metrics.Track(TaskBillingTick)
	defer func() { err = tracker.End(err) }()
	logger := j.logger().With(slog.String("job", TaskBillingTick))

	if j.Redis != nil {
		lock, lerr := cache.AcquireLock(ctx, j.Redis, shared.BillingTickLockKey, j.lockTTL())
		if errors.Is(lerr, cache.ErrLockHeld) {
			logger.Info("billing tick already running elsewhere")
			summary.LockHeld = true
			return summary, nil
		}
		if lerr != nil {
			return summary, lerr
		}
		defer func() {
			if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				logger.Warn("release tick lock", slog.Any("error", rerr))
			}
		}()
	}

	schedules, err := j.Leases.ListActiveSchedules(ctx)
	if err != nil {
		return summary, fmt.Errorf("billing tick: list leases: %w", err)
	}
	due, lapsed := j.dueLeases(schedules, propertyID)
	summary.Due = len(due)
	summary.Skipped = lapsed
	j.Metrics.AddSkipped("lease_lapsed", lapsed)
	logger.Info("starting billing tick",
		slog.Int("due", len(due)),
		slog.Int("lapsed", lapsed),
		slog.Int64("property_id", propertyID))

	var (
		mu      sync.Mutex
		halted  = map[int64]bool{}
		created = map[int64]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, sched := range due {
		g.Go(func() error {
			mu.Lock()
			stop := halted[sched.PropertyID]
			mu.Unlock()
			if stop {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				j.Metrics.AddSkipped("property_halted", 1)
				return nil
			}

			res, err := j.bill(gctx, sched.Lease.UnitID)

			mu.Lock()
			defer mu.Unlock()
			attrs := []any{
				slog.Int64("property_id", sched.PropertyID),
				slog.Int64("unit_id", sched.Lease.UnitID),
				slog.Int64("lease_id", sched.Lease.ID),
			}
			switch {
			case err == nil:
				summary.Created++
				created[sched.PropertyID]++
				logger.Debug("lease billed", append(attrs, slog.Int64("invoice_id", res.Invoice.ID))...)
			case errors.Is(err, billing.ErrNoActiveLease):
				summary.Skipped++
				j.Metrics.AddSkipped("no_active_lease", 1)
				logger.Info("lease skipped", attrs...)
			case errors.Is(err, billing.ErrPolicyInvariant):
				summary.Failed++
				if !halted[sched.PropertyID] {
					halted[sched.PropertyID] = true
					summary.Halted = append(summary.Halted, sched.PropertyID)
				}
				logger.Error("late fee policy corrupt, property halted", append(attrs, slog.Any("error", err))...)
			default:
				summary.Failed++
				logger.Error("lease billing failed", append(attrs, slog.Any("error", err))...)
			}
			return nil
		})
	}
	_ = g.Wait()

	for pid, n := range created {
		j.Metrics.AddInvoices(pid, n)
	}
	logger.Info("completed billing tick",
		slog.Int("created", summary.Created),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
	if summary.Failed > 0 {
		return summary, fmt.Errorf("billing tick: %d of %d leases failed", summary.Failed, summary.Due)
	}
	return summary, ctx.Err()
}

func (j *InvoiceTickJob) bill(ctx context.Context, unitID int64) (invoices.Result, error) {
	if j.LeaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.LeaseTimeout)
		defer cancel()
	}
	return j.Engine.CreateInvoiceForUnitLease(ctx, unitID)
}

// dueLeases also reports how many otherwise due leases are past their end date;
// those are never dispatched so their templates stop materialising.
func (j *InvoiceTickJob) dueLeases(schedules []billing.LeaseSchedule, propertyID int64) ([]billing.LeaseSchedule, int) {
	clock := j.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	zones := map[string]*time.Location{}
	var (
		due    []billing.LeaseSchedule
		lapsed int
	)
	for _, sched := range schedules {
		if propertyID != 0 && sched.PropertyID != propertyID {
			continue
		}
		loc, ok := zones[sched.Timezone]
		if !ok {
			loc = billing.Property{Timezone: sched.Timezone}.Location()
			zones[sched.Timezone] = loc
		}
		today := calendar.Today(clock, loc)
		if calendar.NextInvoiceDate(sched.Lease, sched.LastIntervalEnd).After(today) {
			continue
		}
		if !sched.Lease.InEffect(today) {
			lapsed++
			continue
		}
		due = append(due, sched)
	}
	return due, lapsed
}

func (j *InvoiceTickJob) concurrency() int {
	if j.Concurrency <= 0 {
		return 4
	}
	return j.Concurrency
}

func (j *InvoiceTickJob) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return 30 * time.Minute
	}
	return j.LockTTL
}

func (j *InvoiceTickJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
