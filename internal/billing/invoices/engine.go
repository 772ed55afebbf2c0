// Package invoices creates invoices for active leases and serves invoice queries.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/assessment"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/charges"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/events"
)

// Result describes one engine run.
type Result struct {
	Invoice        billing.Invoice
	Materialized   int
	BoundCharges   int
	RolledInvoices []int64
}

// Engine creates invoices. One call is one transaction.
type Engine struct {
	uow       billing.UnitOfWork
	clock     calendar.Clock
	publisher events.Publisher
	logger    *slog.Logger
	timeout   time.Duration
}

// Option customises the engine.
type Option func(*Engine)

// WithPublisher emits invoice.created after each commit.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithTimeout bounds each invoice transaction.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine constructs the invoice engine.
func NewEngine(uow billing.UnitOfWork, clock calendar.Clock, logger *slog.Logger, opts ...Option) *Engine {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{uow: uow, clock: clock, publisher: events.Noop{}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInvoiceForUnitLease bills the active lease of a unit. Recurring templates
// are materialised before the lease check, so a unit without an active lease
// still gains unbound charges; that run commits and returns ErrNoActiveLease.
func (e *Engine) CreateInvoiceForUnitLease(ctx context.Context, unitID int64) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	now := e.clock.Now()
	var (
		res     Result
		noLease bool
	)
	err := e.uow.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		res = Result{}
		noLease = false

		unit, err := tx.Properties().GetUnit(ctx, unitID)
		if err != nil {
			return fmt.Errorf("invoices: load unit %d: %w", unitID, err)
		}
		prop, err := tx.Properties().GetProperty(ctx, unit.PropertyID)
		if err != nil {
			return fmt.Errorf("invoices: load property %d: %w", unit.PropertyID, err)
		}
		loc := prop.Location()
		today := calendar.DateOf(now, loc)

		resolved, err := policy.Resolve(ctx, tx.Policies(), prop.ID, today)
		if err != nil {
			return err
		}
		dueDate := policy.DueDate(resolved, today)

		res.Materialized, err = charges.MaterializeRecurringForUnit(ctx, tx.Charges(), unit, charges.Subscription{}, now)
		if err != nil {
			return err
		}

		lease, err := tx.Leases().LockActiveLease(ctx, unit.ID)
		if errors.Is(err, billing.ErrNoActiveLease) {
			noLease = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("invoices: lock lease for unit %d: %w", unit.ID, err)
		}
		if !lease.InEffect(today) {
			noLease = true
			return nil
		}

		from, to := calendar.MonthBounds(now, loc)
		pending, err := tx.Charges().ListUnbilled(ctx, unit.ID, from, to)
		if err != nil {
			return fmt.Errorf("invoices: list unbilled charges: %w", err)
		}

		history, err := tx.Invoices().ListForLease(ctx, lease.ID)
		if err != nil {
			return fmt.Errorf("invoices: load history for lease %d: %w", lease.ID, err)
		}
		start, err := nextIntervalStart(lease, history)
		if err != nil {
			return err
		}
		end, err := calendar.IntervalEnd(start, lease.RentCycle)
		if err != nil {
			return err
		}

		inv, err := tx.Invoices().InsertInvoice(ctx, billing.Invoice{
			LeaseID:       lease.ID,
			UnitID:        unit.ID,
			PropertyID:    prop.ID,
			IntervalStart: start,
			IntervalEnd:   end,
			DueDate:       dueDate,
			RentAmount:    billing.RoundMoney(lease.RentAmount),
			ArrearsAmount: decimal.Zero,
			TotalPaid:     decimal.Zero,
			Status:        billing.InvoiceStatusUnpaid,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("invoices: insert: %w", err)
		}

		if len(pending) > 0 {
			ids := make([]int64, len(pending))
			for i, ch := range pending {
				ids[i] = ch.ID
			}
			bound, err := tx.Charges().BindToInvoice(ctx, inv.ID, ids)
			if err != nil {
				return fmt.Errorf("invoices: bind charges: %w", err)
			}
			if bound != len(ids) {
				return fmt.Errorf("invoices: bound %d of %d charges: %w", bound, len(ids), billing.ErrChargeBound)
			}
			res.BoundCharges = bound
		}

		arrears, rolled, err := e.rollArrears(ctx, tx, history, resolved, today)
		if err != nil {
			return err
		}
		if len(rolled) > 0 {
			if err := tx.Invoices().RollIntoArrears(ctx, inv.ID, rolled); err != nil {
				return fmt.Errorf("invoices: roll arrears: %w", err)
			}
			inv.ArrearsAmount = billing.RoundMoney(arrears)
			if err := tx.Invoices().UpdateInvoice(ctx, inv); err != nil {
				return fmt.Errorf("invoices: store arrears: %w", err)
			}
		}
		res.Invoice = inv
		res.RolledInvoices = rolled
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if noLease {
		e.logger.Debug("no active lease",
			slog.Int64("unit_id", unitID),
			slog.Int("materialized", res.Materialized))
		return res, billing.ErrNoActiveLease
	}

	e.logger.Info("invoice created",
		slog.Int64("invoice_id", res.Invoice.ID),
		slog.Int64("lease_id", res.Invoice.LeaseID),
		slog.String("interval_start", res.Invoice.IntervalStart.Format(time.DateOnly)),
		slog.Int("charges", res.BoundCharges),
		slog.Int("rolled", len(res.RolledInvoices)))
	e.publish(ctx, res.Invoice)
	return res, nil
}

// nextIntervalStart continues from the last invoice by creation or opens at the
// lease start. It refuses to start on or before any billed day.
func nextIntervalStart(lease billing.Lease, history []billing.Invoice) (time.Time, error) {
	if len(history) == 0 {
		return lease.StartDate, nil
	}
	start := calendar.AddDays(history[len(history)-1].IntervalEnd, 1)
	for _, prior := range history {
		if !start.After(prior.IntervalEnd) {
			return time.Time{}, fmt.Errorf("invoices: lease %d start %s within invoice %d: %w",
				lease.ID, start.Format(time.DateOnly), prior.ID, billing.ErrIntervalOverlap)
		}
	}
	return start, nil
}

// rollArrears sums the payable amounts of every UNPAID or REJECTED predecessor,
// assessed before their arrears are zeroed.
func (e *Engine) rollArrears(ctx context.Context, tx billing.Stores, history []billing.Invoice, resolved policy.Resolved, today time.Time) (decimal.Decimal, []int64, error) {
	var outstanding []billing.Invoice
	for _, prior := range history {
		if prior.Status.Outstanding() {
			outstanding = append(outstanding, prior)
		}
	}
	if len(outstanding) == 0 {
		return decimal.Zero, nil, nil
	}
	ids := make([]int64, len(outstanding))
	for i, prior := range outstanding {
		ids[i] = prior.ID
	}
	bound, err := tx.Charges().ListByInvoices(ctx, ids)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("invoices: load arrears charges: %w", err)
	}
	total := decimal.Zero
	for _, prior := range outstanding {
		total = total.Add(assessment.Assess(prior, bound[prior.ID], resolved, today).PayableAmount)
	}
	return total, ids, nil
}

func (e *Engine) publish(ctx context.Context, inv billing.Invoice) {
	payload := map[string]any{
		"invoice_id":     inv.ID,
		"lease_id":       inv.LeaseID,
		"unit_id":        inv.UnitID,
		"property_id":    inv.PropertyID,
		"interval_start": inv.IntervalStart.Format(time.DateOnly),
		"interval_end":   inv.IntervalEnd.Format(time.DateOnly),
		"due_date":       inv.DueDate.Format(time.DateOnly),
		"rent_amount":    inv.RentAmount.StringFixed(2),
		"arrears_amount": inv.ArrearsAmount.StringFixed(2),
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), events.InvoiceCreated, strconv.FormatInt(inv.ID, 10), payload); err != nil {
		e.logger.Warn("invoice event not published", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
}
