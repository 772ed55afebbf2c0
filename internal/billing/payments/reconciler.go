// Package payments reconciles tenant claims and gateway confirmations against
// invoices and posts settled invoices to the general ledger.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/assessment"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/ledger"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/blob"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/events"
)

// Outcome classifies a processed gateway event.
type Outcome string

const (
	OutcomeVerified       Outcome = "verified"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeUnknownInvoice Outcome = "unknown_invoice"
)

// UnknownInvoiceNamespace is the blob prefix for unresolvable events.
const UnknownInvoiceNamespace = "webhooks/unknown-invoice"

// MarkPaidInput is a tenant's claim that an invoice was paid.
type MarkPaidInput struct {
	InvoiceID int64
	TenantID  int64
	Method    billing.PaymentMethod
	AccountID *int64
}

// Reconciler applies payments to invoices.
type Reconciler struct {
	uow       billing.UnitOfWork
	clock     calendar.Clock
	logger    *slog.Logger
	recorder  blob.Recorder
	publisher events.Publisher
	timeout   time.Duration
	group     singleflight.Group
}

// Option customises the reconciler.
type Option func(*Reconciler)

// WithRecorder archives unknown-invoice events.
func WithRecorder(r blob.Recorder) Option {
	return func(rc *Reconciler) {
		if r != nil {
			rc.recorder = r
		}
	}
}

// WithPublisher emits invoice.verified after each settlement.
func WithPublisher(p events.Publisher) Option {
	return func(rc *Reconciler) {
		if p != nil {
			rc.publisher = p
		}
	}
}

// WithTimeout bounds each settlement transaction.
func WithTimeout(d time.Duration) Option {
	return func(rc *Reconciler) { rc.timeout = d }
}

// NewReconciler constructs the payment reconciler.
func NewReconciler(uow billing.UnitOfWork, clock calendar.Clock, logger *slog.Logger, opts ...Option) *Reconciler {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		uow:       uow,
		clock:     clock,
		logger:    logger,
		recorder:  blob.Discard{},
		publisher: events.Noop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarkAsPaid records the primary tenant's claim. The invoice becomes NOT_VERIFIED
// and nothing is posted to the ledger.
func (r *Reconciler) MarkAsPaid(ctx context.Context, in MarkPaidInput) (assessment.Assessed, error) {
	now := r.clock.Now()
	var out assessment.Assessed
	err := r.uow.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		inv, err := tx.Invoices().LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		lease, err := tx.Leases().GetLease(ctx, inv.LeaseID)
		if err != nil {
			return fmt.Errorf("payments: load lease %d: %w", inv.LeaseID, err)
		}
		if lease.PrimaryTenantID != in.TenantID {
			return fmt.Errorf("invoice %d: %w", inv.ID, billing.ErrTenantMismatch)
		}
		if inv.Status != billing.InvoiceStatusUnpaid {
			return fmt.Errorf("invoice %d is %s: %w", inv.ID, inv.Status, billing.ErrInvalidTransition)
		}

		a, today, err := assess(ctx, tx, inv, now)
		if err != nil {
			return err
		}
		inv.Status = billing.InvoiceStatusNotVerified
		inv.PayedAt = &today
		inv.PayedLateFee = decimal.NewNullDecimal(billing.RoundMoney(a.PayableLateFee))
		inv.TotalPaid = billing.RoundMoney(a.PayableAmount)
		inv.UpdatedAt = now
		if err := tx.Invoices().UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("payments: update invoice: %w", err)
		}
		if err := tx.Charges().SetStatusByInvoice(ctx, inv.ID, billing.ChargeStatusNotVerified); err != nil {
			return fmt.Errorf("payments: update charges: %w", err)
		}
		if in.Method != "" {
			pay := billing.Payment{
				InvoiceID:   inv.ID,
				Amount:      inv.TotalPaid,
				Method:      in.Method,
				PaymentDate: today,
				AccountID:   in.AccountID,
				CreatedAt:   now,
			}
			if err := pay.Validate(); err != nil {
				return err
			}
			if _, err := tx.Payments().UpsertPayment(ctx, pay); err != nil {
				return fmt.Errorf("payments: record payment: %w", err)
			}
		}
		a.Invoice = inv
		out = a
		return nil
	})
	if err != nil {
		return assessment.Assessed{}, err
	}
	r.logger.Info("invoice marked as paid",
		slog.Int64("invoice_id", out.ID),
		slog.Int64("tenant_id", in.TenantID),
		slog.String("total_paid", out.TotalPaid.StringFixed(2)))
	return out, nil
}

// HandleEvent applies a gateway callback. Only payment_intent.succeeded changes
// state. Concurrent deliveries for one invoice share a single settlement.
func (r *Reconciler) HandleEvent(ctx context.Context, evt GatewayEvent) (Outcome, error) {
	if evt.Type != EventPaymentIntentSucceeded {
		return OutcomeIgnored, nil
	}
	if evt.InvoiceID == 0 {
		return r.unknownInvoice(ctx, evt)
	}

	resultChan := r.group.DoChan(strconv.FormatInt(evt.InvoiceID, 10), func() (interface{}, error) {
		return r.settle(ctx, evt)
	})
	var (
		outcome Outcome
		err     error
	)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultChan:
		if res.Val != nil {
			outcome = res.Val.(Outcome)
		}
		err = res.Err
	}
	if errors.Is(err, billing.ErrUnknownInvoice) {
		return r.unknownInvoice(ctx, evt)
	}
	return outcome, err
}

func (r *Reconciler) settle(ctx context.Context, evt GatewayEvent) (Outcome, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	now := r.clock.Now()
	outcome := OutcomeVerified
	var settled assessment.Assessed
	err := r.uow.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		outcome = OutcomeVerified
		inv, err := tx.Invoices().LockInvoice(ctx, evt.InvoiceID)
		if errors.Is(err, billing.ErrNotFound) {
			return billing.ErrUnknownInvoice
		}
		if err != nil {
			return err
		}
		if inv.Status == billing.InvoiceStatusVerified {
			outcome = OutcomeDuplicate
			return nil
		}

		a, today, err := assess(ctx, tx, inv, now)
		if err != nil {
			return err
		}
		inv.Status = billing.InvoiceStatusVerified
		inv.PayedAt = &today
		inv.PayedLateFee = decimal.NewNullDecimal(billing.RoundMoney(decimal.Max(decimal.Zero, a.PayableLateFee)))
		inv.TotalPaid = billing.RoundMoney(a.PayableAmount)
		inv.UpdatedAt = now
		if err := tx.Invoices().UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("payments: update invoice: %w", err)
		}
		if err := tx.Charges().SetStatusByInvoice(ctx, inv.ID, billing.ChargeStatusVerified); err != nil {
			return fmt.Errorf("payments: update charges: %w", err)
		}
		if _, err := tx.Payments().UpsertPayment(ctx, billing.Payment{
			InvoiceID:   inv.ID,
			Amount:      inv.TotalPaid,
			Method:      billing.PaymentMethodCard,
			PaymentDate: today,
			ExternalRef: evt.IntentID,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("payments: record payment: %w", err)
		}

		journal := ledger.SettlementEvent(a, now)
		if len(journal.Lines) > 0 {
			rows, err := ledger.Post(ctx, tx.Ledger(), journal)
			if err != nil {
				return err
			}
			debit := decimal.Zero
			for _, row := range rows {
				if row.Direction == billing.DirectionDebit {
					debit = debit.Add(row.Amount)
				}
			}
			if !debit.Equal(inv.TotalPaid) {
				return fmt.Errorf("%w: posted %s for payable %s", billing.ErrLedgerImbalance, debit, inv.TotalPaid)
			}
		}
		a.Invoice = inv
		settled = a
		return nil
	})
	if err != nil {
		if !errors.Is(err, billing.ErrUnknownInvoice) {
			r.logger.Error("payment settlement failed", slog.Int64("invoice_id", evt.InvoiceID), slog.String("event_id", evt.ID), slog.Any("error", err))
		}
		return "", err
	}
	if outcome == OutcomeDuplicate {
		r.logger.Info("duplicate payment event ignored", slog.Int64("invoice_id", evt.InvoiceID), slog.String("event_id", evt.ID))
		return outcome, nil
	}

	r.logger.Info("invoice verified",
		slog.Int64("invoice_id", settled.ID),
		slog.String("total_paid", settled.TotalPaid.StringFixed(2)),
		slog.String("event_id", evt.ID))
	payload := map[string]any{
		"invoice_id":     settled.ID,
		"lease_id":       settled.LeaseID,
		"total_paid":     settled.TotalPaid.StringFixed(2),
		"payed_late_fee": settled.PayedLateFee.Decimal.StringFixed(2),
		"intent_id":      evt.IntentID,
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), events.InvoiceVerified, strconv.FormatInt(settled.ID, 10), payload); err != nil {
		r.logger.Warn("invoice event not published", slog.Int64("invoice_id", settled.ID), slog.Any("error", err))
	}
	return outcome, nil
}

func (r *Reconciler) unknownInvoice(ctx context.Context, evt GatewayEvent) (Outcome, error) {
	key, err := r.recorder.Record(ctx, UnknownInvoiceNamespace, "application/json", evt.Raw)
	if err != nil {
		r.logger.Warn("unknown invoice event not archived", slog.String("event_id", evt.ID), slog.Any("error", err))
	}
	r.logger.Warn("payment event for unknown invoice",
		slog.String("event_id", evt.ID),
		slog.Int64("invoice_id", evt.InvoiceID),
		slog.String("archive_key", key))
	return OutcomeUnknownInvoice, billing.ErrUnknownInvoice
}

// assess evaluates inv in its property's zone as of now.
func assess(ctx context.Context, tx billing.Stores, inv billing.Invoice, now time.Time) (assessment.Assessed, time.Time, error) {
	prop, err := tx.Properties().GetProperty(ctx, inv.PropertyID)
	if err != nil {
		return assessment.Assessed{}, time.Time{}, fmt.Errorf("payments: load property %d: %w", inv.PropertyID, err)
	}
	today := calendar.DateOf(now, prop.Location())
	resolved, err := policy.Resolve(ctx, tx.Policies(), prop.ID, today)
	if err != nil {
		return assessment.Assessed{}, time.Time{}, err
	}
	bound, err := tx.Charges().ListByInvoices(ctx, []int64{inv.ID})
	if err != nil {
		return assessment.Assessed{}, time.Time{}, fmt.Errorf("payments: load charges: %w", err)
	}
	return assessment.Assess(inv, bound[inv.ID], resolved, today), today, nil
}

// List returns payments matching filter.
func (r *Reconciler) List(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	return r.uow.Payments().List(ctx, filter)
}
