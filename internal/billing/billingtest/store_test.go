package billingtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	store := New()
	ten := store.SeedTenancy(TenancyOptions{})
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		_, err := tx.Charges().InsertCharge(ctx, billing.Charge{
			Title: "Water", Amount: decimal.NewFromInt(20), UnitID: ten.Unit.ID,
			Type: billing.ChargeTypeOneTime, Status: billing.ChargeStatusUnpaid,
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := store.Charges().List(ctx, billing.ChargeFilter{UnitID: ten.Unit.ID})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestBindToInvoiceIsMonotone(t *testing.T) {
	store := New()
	ctx := context.Background()
	ch, err := store.Charges().InsertCharge(ctx, billing.Charge{
		Title: "Water", Amount: decimal.NewFromInt(20), UnitID: 1,
		Type: billing.ChargeTypeOneTime, Status: billing.ChargeStatusUnpaid,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	n, err := store.Charges().BindToInvoice(ctx, 10, []int64{ch.ID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = store.Charges().BindToInvoice(ctx, 11, []int64{ch.ID})
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := store.Charges().GetCharge(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), *got.InvoiceID)
}

func TestFailOnInjectsErrors(t *testing.T) {
	store := New()
	boom := errors.New("db down")
	store.FailOn("GetUnit", boom)
	_, err := store.Properties().GetUnit(context.Background(), 1)
	require.ErrorIs(t, err, boom)

	store.FailOn("GetUnit", nil)
	_, err = store.Properties().GetUnit(context.Background(), 1)
	require.ErrorIs(t, err, billing.ErrNotFound)
}

func TestInsertChargeCoercesRecurringStatus(t *testing.T) {
	store := New()
	inv := int64(3)
	ch, err := store.Charges().InsertCharge(context.Background(), billing.Charge{
		Title: "Water", Amount: decimal.NewFromInt(20), UnitID: 1, PropertyID: 1,
		Type: billing.ChargeTypeRecurring, Status: billing.ChargeStatusVerified, InvoiceID: &inv,
	})
	require.NoError(t, err)
	require.Equal(t, billing.ChargeStatusNone, ch.Status)
	require.Nil(t, ch.InvoiceID)

	one, err := store.Charges().InsertCharge(context.Background(), billing.Charge{
		Title: "Repair", Amount: decimal.NewFromInt(80), UnitID: 1, PropertyID: 1, Type: billing.ChargeTypeOneTime,
	})
	require.NoError(t, err)
	require.Equal(t, billing.ChargeStatusUnpaid, one.Status)
}

func TestInsertInvoiceRejectsDuplicateInterval(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.Invoices().InsertInvoice(ctx, billing.Invoice{LeaseID: 1, IntervalStart: start, IntervalEnd: start.AddDate(0, 1, -1)})
	require.NoError(t, err)
	_, err = store.Invoices().InsertInvoice(ctx, billing.Invoice{LeaseID: 1, IntervalStart: start, IntervalEnd: start.AddDate(0, 1, -1)})
	require.ErrorIs(t, err, billing.ErrIntervalOverlap)
	_, err = store.Invoices().InsertInvoice(ctx, billing.Invoice{LeaseID: 2, IntervalStart: start, IntervalEnd: start.AddDate(0, 1, -1)})
	require.NoError(t, err)
}
