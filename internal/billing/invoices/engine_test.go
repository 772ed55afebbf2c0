package invoices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
)

type movableClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *movableClock) Set(day time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = day.Add(5 * time.Minute)
}

type capturePublisher struct {
	mu    sync.Mutex
	kinds []string
	keys  []string
}

func (p *capturePublisher) Publish(_ context.Context, kind, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	p.keys = append(p.keys, key)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s got %s", want, got)
}

type harness struct {
	store  *billingtest.Store
	clock  *movableClock
	engine *Engine
	query  *Query
	pub    *capturePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := billingtest.New()
	clock := &movableClock{}
	clock.Set(calendar.Date(2024, 1, 1))
	pub := &capturePublisher{}
	return &harness{
		store:  store,
		clock:  clock,
		engine: NewEngine(store, clock, nil, WithPublisher(pub), WithTimeout(time.Second)),
		query:  NewQuery(store, clock),
		pub:    pub,
	}
}

func (h *harness) tick(t *testing.T, day time.Time, unitID int64) Result {
	t.Helper()
	h.clock.Set(day)
	res, err := h.engine.CreateInvoiceForUnitLease(context.Background(), unitID)
	require.NoError(t, err)
	return res
}

func (h *harness) invoice(t *testing.T, id int64) billing.Invoice {
	t.Helper()
	inv, err := h.store.Invoices().GetInvoice(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func TestMonthlyLeaseWithoutCharges(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	h.store.FlatPolicy(ten.Property.ID, "50")

	res := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID)
	inv := res.Invoice
	require.Equal(t, calendar.Date(2024, 1, 1), inv.IntervalStart)
	require.Equal(t, calendar.Date(2024, 1, 30), inv.IntervalEnd)
	require.Equal(t, calendar.Date(2024, 1, 1), inv.DueDate)
	require.Equal(t, billing.InvoiceStatusUnpaid, inv.Status)
	requireDec(t, "0", inv.ArrearsAmount)
	requireDec(t, "0", inv.TotalPaid)
	require.Nil(t, inv.ArrearOf)
	require.Zero(t, res.BoundCharges)

	got, err := h.query.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.False(t, got.IsLateFeeApplicable)
	requireDec(t, "1000", got.PayableAmount)

	h.clock.Set(calendar.Date(2024, 1, 2))
	got, err = h.query.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.True(t, got.IsLateFeeApplicable)
	requireDec(t, "1050", got.PayableAmount)

	require.Equal(t, []string{"invoice.created"}, h.pub.kinds)
}

func TestWeeklyLeaseWithRecurringWater(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{Cycle: billing.RentCycleWeekly, Rent: "200"})
	h.store.FlatPolicy(ten.Property.ID, "5")
	_, err := h.store.Charges().InsertCharge(context.Background(), billing.Charge{
		Title: "Water", Amount: dec("20"), TenantID: 77, PropertyID: ten.Property.ID, UnitID: ten.Unit.ID,
		Type: billing.ChargeTypeRecurring,
	})
	require.NoError(t, err)

	first := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID)
	require.Equal(t, 1, first.Materialized)
	require.Equal(t, 1, first.BoundCharges)
	assessed, err := h.query.Get(context.Background(), first.Invoice.ID)
	require.NoError(t, err)
	requireDec(t, "220", assessed.ChargesAndRent)

	second := h.tick(t, calendar.Date(2024, 1, 8), ten.Unit.ID)
	require.Equal(t, calendar.Date(2024, 1, 8), second.Invoice.IntervalStart)
	require.Equal(t, calendar.Date(2024, 1, 14), second.Invoice.IntervalEnd)
	require.Equal(t, 1, second.BoundCharges)
	requireDec(t, "225", second.Invoice.ArrearsAmount)
	require.Equal(t, []int64{first.Invoice.ID}, second.RolledInvoices)

	prior := h.invoice(t, first.Invoice.ID)
	require.Equal(t, second.Invoice.ID, *prior.ArrearOf)
	requireDec(t, "0", prior.ArrearsAmount)
	require.True(t, second.Invoice.CreatedAt.After(prior.CreatedAt))

	templates, err := h.store.Charges().ListRecurring(context.Background(), billing.ChargeScope{UnitID: ten.Unit.ID})
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, billing.ChargeStatusNone, templates[0].Status)
	require.Nil(t, templates[0].InvoiceID)
}

func TestArrearsChainPointsEveryPredecessorAtNewest(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})

	i1 := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	i2 := h.tick(t, calendar.Date(2024, 1, 31), ten.Unit.ID).Invoice
	requireDec(t, "1000", i2.ArrearsAmount)

	before1, err := h.query.Get(context.Background(), i1.ID)
	require.NoError(t, err)
	before2, err := h.query.Get(context.Background(), i2.ID)
	require.NoError(t, err)

	res := h.tick(t, calendar.Date(2024, 3, 1), ten.Unit.ID)
	i3 := res.Invoice
	require.ElementsMatch(t, []int64{i1.ID, i2.ID}, res.RolledInvoices)
	require.True(t, i3.ArrearsAmount.Equal(before1.PayableAmount.Add(before2.PayableAmount)))
	requireDec(t, "3000", i3.ArrearsAmount)

	for _, id := range []int64{i1.ID, i2.ID} {
		prior := h.invoice(t, id)
		require.Equal(t, i3.ID, *prior.ArrearOf)
		requireDec(t, "0", prior.ArrearsAmount)
	}
}

func TestRejectedInvoiceRollsLikeUnpaid(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})

	i1 := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	h.store.SetInvoiceStatus(i1.ID, billing.InvoiceStatusRejected)
	i2 := h.tick(t, calendar.Date(2024, 1, 31), ten.Unit.ID).Invoice
	requireDec(t, "1000", i2.ArrearsAmount)
	require.Equal(t, i2.ID, *h.invoice(t, i1.ID).ArrearOf)
}

func TestSettledInvoicesAreNotRolled(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})

	i1 := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	h.store.SetInvoiceStatus(i1.ID, billing.InvoiceStatusVerified)
	res := h.tick(t, calendar.Date(2024, 1, 31), ten.Unit.ID)
	requireDec(t, "0", res.Invoice.ArrearsAmount)
	require.Empty(t, res.RolledInvoices)
	require.Nil(t, h.invoice(t, i1.ID).ArrearOf)
}

func TestSameDayTwiceProducesContiguousInvoices(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})

	a := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	b := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, calendar.AddDays(a.IntervalEnd, 1), b.IntervalStart)

	rows, err := h.store.Invoices().ListForLease(context.Background(), ten.Lease.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestNoActiveLeaseStillMaterializesTemplates(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{Status: billing.LeaseStatusPending})
	_, err := h.store.Charges().InsertCharge(context.Background(), billing.Charge{
		Title: "Water", Amount: dec("20"), PropertyID: ten.Property.ID, UnitID: ten.Unit.ID, Type: billing.ChargeTypeRecurring,
	})
	require.NoError(t, err)

	res, err := h.engine.CreateInvoiceForUnitLease(context.Background(), ten.Unit.ID)
	require.ErrorIs(t, err, billing.ErrNoActiveLease)
	require.Equal(t, 1, res.Materialized)

	unbound, err := h.store.Charges().List(context.Background(), billing.ChargeFilter{UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime})
	require.NoError(t, err)
	require.Len(t, unbound, 1)
	require.Nil(t, unbound[0].InvoiceID)

	// Once the lease activates the accumulated charge is billed.
	h.store.SetLeaseStatus(ten.Lease.ID, billing.LeaseStatusActive)
	next := h.tick(t, calendar.Date(2024, 1, 2), ten.Unit.ID)
	require.Equal(t, 2, next.BoundCharges)
}

func TestLeaseOutsideItsDatesIsNotBilled(t *testing.T) {
	h := newHarness(t)
	future := h.store.SeedTenancy(billingtest.TenancyOptions{Start: calendar.Date(2024, 2, 1)})
	closed := h.store.SeedTenancy(billingtest.TenancyOptions{Status: billing.LeaseStatusClosed})

	for _, unitID := range []int64{future.Unit.ID, closed.Unit.ID} {
		_, err := h.engine.CreateInvoiceForUnitLease(context.Background(), unitID)
		require.ErrorIs(t, err, billing.ErrNoActiveLease)
	}
	rows, err := h.store.Invoices().List(context.Background(), billing.InvoiceFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestChargesFromPreviousMonthAreNotSelected(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{Cycle: billing.RentCycleWeekly})
	_, err := h.store.Charges().InsertCharge(context.Background(), billing.Charge{
		Title: "Repair", Amount: dec("80"), PropertyID: ten.Property.ID, UnitID: ten.Unit.ID,
		Type: billing.ChargeTypeOneTime, Status: billing.ChargeStatusUnpaid,
		CreatedAt: time.Date(2023, 12, 30, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	res := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID)
	require.Zero(t, res.BoundCharges)
}

func TestFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	_, err := h.store.Charges().InsertCharge(context.Background(), billing.Charge{
		Title: "Water", Amount: dec("20"), PropertyID: ten.Property.ID, UnitID: ten.Unit.ID, Type: billing.ChargeTypeRecurring,
	})
	require.NoError(t, err)
	first := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice

	boom := errors.New("connection reset")
	h.store.FailOn("RollIntoArrears", boom)
	h.clock.Set(calendar.Date(2024, 1, 31))
	_, err = h.engine.CreateInvoiceForUnitLease(context.Background(), ten.Unit.ID)
	require.ErrorIs(t, err, boom)

	rows, err := h.store.Invoices().ListForLease(context.Background(), ten.Lease.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Nil(t, h.invoice(t, first.ID).ArrearOf)

	children, err := h.store.Charges().List(context.Background(), billing.ChargeFilter{UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime})
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestIntervalOverlapAborts(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	ctx := context.Background()
	base := billing.Invoice{LeaseID: ten.Lease.ID, UnitID: ten.Unit.ID, PropertyID: ten.Property.ID, RentAmount: dec("1000"), Status: billing.InvoiceStatusVerified}

	late := base
	late.IntervalStart, late.IntervalEnd = calendar.Date(2024, 1, 31), calendar.Date(2024, 2, 29)
	late.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := h.store.Invoices().InsertInvoice(ctx, late)
	require.NoError(t, err)

	early := base
	early.IntervalStart, early.IntervalEnd = calendar.Date(2024, 1, 1), calendar.Date(2024, 1, 30)
	early.CreatedAt = time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	_, err = h.store.Invoices().InsertInvoice(ctx, early)
	require.NoError(t, err)

	h.clock.Set(calendar.Date(2024, 1, 31))
	_, err = h.engine.CreateInvoiceForUnitLease(ctx, ten.Unit.ID)
	require.ErrorIs(t, err, billing.ErrIntervalOverlap)

	rows, err := h.store.Invoices().ListForLease(ctx, ten.Lease.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestCorruptPolicyFailsFast(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	p := h.store.FlatPolicy(ten.Property.ID, "5")
	p.GracePeriodType = billing.GracePeriodTillDayOfMonth
	p.GracePeriodValue = 31
	h.store.SetPolicy(p)

	_, err := h.engine.CreateInvoiceForUnitLease(context.Background(), ten.Unit.ID)
	require.ErrorIs(t, err, billing.ErrPolicyInvariant)
}

func TestGracePeriodSetsDueDate(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	p := h.store.FlatPolicy(ten.Property.ID, "5")
	p.GracePeriodType = billing.GracePeriodNumberOfDays
	p.GracePeriodValue = 5
	h.store.SetPolicy(p)

	inv := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	require.Equal(t, calendar.Date(2024, 1, 6), inv.DueDate)
}

func TestCanceledContextRollsBack(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.CreateInvoiceForUnitLease(ctx, ten.Unit.ID)
	require.ErrorIs(t, err, context.Canceled)
	rows, err := h.store.Invoices().List(context.Background(), billing.InvoiceFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestQueryListFilters(t *testing.T) {
	h := newHarness(t)
	ten := h.store.SeedTenancy(billingtest.TenancyOptions{})
	other := h.store.SeedTenancy(billingtest.TenancyOptions{})
	i1 := h.tick(t, calendar.Date(2024, 1, 1), ten.Unit.ID).Invoice
	h.tick(t, calendar.Date(2024, 1, 1), other.Unit.ID)
	i2 := h.tick(t, calendar.Date(2024, 1, 31), ten.Unit.ID).Invoice

	byUnit, err := h.query.List(context.Background(), billing.InvoiceFilter{UnitID: ten.Unit.ID})
	require.NoError(t, err)
	require.Len(t, byUnit, 2)

	rolled, err := h.query.List(context.Background(), billing.InvoiceFilter{ArrearOf: i2.ID})
	require.NoError(t, err)
	require.Len(t, rolled, 1)
	require.Equal(t, i1.ID, rolled[0].ID)

	due := calendar.Date(2024, 1, 31)
	byDue, err := h.query.List(context.Background(), billing.InvoiceFilter{DueDate: &due})
	require.NoError(t, err)
	require.Len(t, byDue, 1)

	_, err = h.query.Get(context.Background(), 9999)
	require.ErrorIs(t, err, billing.ErrNotFound)
}
