package charges

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
)

var fixedNow = time.Date(2024, 1, 8, 0, 5, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *billingtest.Store, billingtest.Tenancy) {
	t.Helper()
	store := billingtest.New()
	ten := store.SeedTenancy(billingtest.TenancyOptions{})
	return NewService(store, calendar.FixedClock{At: fixedNow}, nil), store, ten
}

func TestCreateCoercesRecurringStatus(t *testing.T) {
	svc, _, ten := newService(t)
	ch, err := svc.Create(context.Background(), CreateInput{
		Title: "Water", Amount: decimal.NewFromInt(20), TenantID: 77, UnitID: ten.Unit.ID,
		Type: billing.ChargeTypeRecurring, Status: billing.ChargeStatusVerified,
	})
	require.NoError(t, err)
	require.Equal(t, billing.ChargeStatusNone, ch.Status)
	require.Equal(t, ten.Property.ID, ch.PropertyID)
	require.Equal(t, fixedNow, ch.CreatedAt)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, store, ten := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Title: "", Amount: decimal.NewFromInt(1), UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime})
	require.ErrorIs(t, err, billing.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Title: "Fee", Amount: decimal.Zero, UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime})
	require.ErrorIs(t, err, billing.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Title: "Fee", Amount: decimal.NewFromInt(1), UnitID: 999, Type: billing.ChargeTypeOneTime})
	require.ErrorIs(t, err, billing.ErrNotFound)

	cash := store.AddAccount(billing.GLAccountKey{
		HolderKind: billing.HolderProperty, HolderID: ten.Property.ID,
		AccountType: billing.AccountTypeAsset, SubType: billing.SubTypeCashAndBank,
	})
	_, err = svc.Create(ctx, CreateInput{Title: "Fee", Amount: decimal.NewFromInt(1), UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime, GLAccountID: &cash.ID})
	require.ErrorIs(t, err, billing.ErrValidation)
}

func TestMaterializeRecurringForUnit(t *testing.T) {
	svc, store, ten := newService(t)
	ctx := context.Background()
	other := store.AddUnit(billing.Unit{PropertyID: ten.Property.ID, Name: "A-102"})

	water, err := svc.Create(ctx, CreateInput{Title: "Water", Description: "metered", Notes: "n", Amount: decimal.NewFromInt(20), TenantID: 77, UnitID: ten.Unit.ID, Type: billing.ChargeTypeRecurring})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Title: "Parking", Amount: decimal.NewFromInt(35), TenantID: 78, UnitID: ten.Unit.ID, Type: billing.ChargeTypeRecurring})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Title: "Gas", Amount: decimal.NewFromInt(10), TenantID: 77, UnitID: other.ID, Type: billing.ChargeTypeRecurring})
	require.NoError(t, err)

	n, err := MaterializeRecurringForUnit(ctx, store.Charges(), ten.Unit, Subscription{TenantID: 77}, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = MaterializeRecurringForUnit(ctx, store.Charges(), ten.Unit, Subscription{}, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	children, err := svc.List(ctx, billing.ChargeFilter{UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime})
	require.NoError(t, err)
	require.Len(t, children, 3)
	first := children[0]
	require.Equal(t, water.ID, *first.ParentChargeID)
	require.Equal(t, "Water", first.Title)
	require.Equal(t, "metered", first.Description)
	require.Equal(t, "n", first.Notes)
	require.Equal(t, billing.ChargeStatusUnpaid, first.Status)
	require.Nil(t, first.InvoiceID)
	require.True(t, first.Amount.Equal(decimal.NewFromInt(20)))

	templates, err := svc.Templates(ctx, billing.ChargeScope{PropertyID: ten.Property.ID})
	require.NoError(t, err)
	require.Len(t, templates, 3)
	for _, tmpl := range templates {
		require.Equal(t, billing.ChargeStatusNone, tmpl.Status)
		require.Nil(t, tmpl.InvoiceID)
	}
}

func TestDeleteRefusesBoundCharges(t *testing.T) {
	svc, store, ten := newService(t)
	ctx := context.Background()

	ch, err := svc.Create(ctx, CreateInput{Title: "Repair", Amount: decimal.NewFromInt(80), TenantID: 77, UnitID: ten.Unit.ID, Type: billing.ChargeTypeOneTime})
	require.NoError(t, err)
	_, err = store.Charges().BindToInvoice(ctx, 500, []int64{ch.ID})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, ch.ID), billing.ErrChargeBound)

	tmpl, err := svc.Create(ctx, CreateInput{Title: "Water", Amount: decimal.NewFromInt(20), TenantID: 77, UnitID: ten.Unit.ID, Type: billing.ChargeTypeRecurring})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, tmpl.ID))
	require.ErrorIs(t, svc.Delete(ctx, tmpl.ID), billing.ErrNotFound)
}

func TestDeleteTemplateKeepsChildrenLinked(t *testing.T) {
	svc, store, ten := newService(t)
	ctx := context.Background()

	tmpl, err := svc.Create(ctx, CreateInput{Title: "Water", Amount: decimal.NewFromInt(20), TenantID: 77, UnitID: ten.Unit.ID, Type: billing.ChargeTypeRecurring})
	require.NoError(t, err)
	_, err = MaterializeRecurringForUnit(ctx, store.Charges(), ten.Unit, Subscription{}, fixedNow)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, tmpl.ID))

	templates, err := svc.Templates(ctx, billing.ChargeScope{UnitID: ten.Unit.ID})
	require.NoError(t, err)
	require.Empty(t, templates)
	_, err = store.Charges().GetCharge(ctx, tmpl.ID)
	require.ErrorIs(t, err, billing.ErrNotFound)

	children, err := svc.List(ctx, billing.ChargeFilter{UnitID: ten.Unit.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.NotNil(t, children[0].ParentChargeID)
	require.Equal(t, tmpl.ID, *children[0].ParentChargeID)

	n, err := MaterializeRecurringForUnit(ctx, store.Charges(), ten.Unit, Subscription{}, fixedNow)
	require.NoError(t, err)
	require.Zero(t, n)
}
