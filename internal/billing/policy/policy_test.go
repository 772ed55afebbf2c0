package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
)

func TestResolveReturnsSentinelWhenMissing(t *testing.T) {
	store := billingtest.New()
	res, err := Resolve(context.Background(), store.Policies(), 5, calendar.Date(2024, 1, 1))
	require.NoError(t, err)
	require.True(t, res.IsSentinel)
	require.False(t, res.IsExpired)
	require.Equal(t, billing.FeeTypeFlat, res.Policy.FeeType)
	require.True(t, res.Policy.BaseAmount.IsZero())
	require.False(t, res.Policy.ChargeDaily)
	require.Equal(t, billing.GracePeriodNone, res.Policy.GracePeriodType)
}

func TestResolveFlagsExpiryButStillReturnsPolicy(t *testing.T) {
	store := billingtest.New()
	store.FlatPolicy(5, "50")

	res, err := Resolve(context.Background(), store.Policies(), 5, calendar.Date(2024, 12, 31))
	require.NoError(t, err)
	require.False(t, res.IsExpired)

	res, err = Resolve(context.Background(), store.Policies(), 5, calendar.Date(2025, 1, 1))
	require.NoError(t, err)
	require.True(t, res.IsExpired)
	require.True(t, res.Policy.BaseAmount.Equal(decimal.NewFromInt(50)))
}

func TestResolveFailsFastOnCorruptRow(t *testing.T) {
	store := billingtest.New()
	p := store.FlatPolicy(5, "50")
	p.ChargeDaily = true
	store.SetPolicy(p)

	_, err := Resolve(context.Background(), store.Policies(), 5, calendar.Date(2024, 1, 1))
	require.True(t, errors.Is(err, billing.ErrPolicyInvariant))
}

func TestDueDate(t *testing.T) {
	today := calendar.Date(2024, 3, 10)
	base := billing.LateFeePolicy{GracePeriodType: billing.GracePeriodNone}

	require.Equal(t, today, DueDate(Resolved{Policy: base}, today))

	days := base
	days.GracePeriodType = billing.GracePeriodNumberOfDays
	days.GracePeriodValue = 5
	require.Equal(t, calendar.Date(2024, 3, 15), DueDate(Resolved{Policy: days}, today))

	till := base
	till.GracePeriodType = billing.GracePeriodTillDayOfMonth
	till.GracePeriodValue = 25
	require.Equal(t, calendar.Date(2024, 3, 25), DueDate(Resolved{Policy: till}, today))

	// Day already passed this month: the day is still replaced verbatim.
	till.GracePeriodValue = 3
	require.Equal(t, calendar.Date(2024, 3, 3), DueDate(Resolved{Policy: till}, today))

	require.Equal(t, today, DueDate(Resolved{Policy: days, IsExpired: true}, today))
}

func TestServiceUpdateValidates(t *testing.T) {
	store := billingtest.New()
	prop := store.AddProperty(billing.Property{Name: "Harbor"})
	store.FlatPolicy(prop.ID, "50")
	svc := NewService(store, calendar.FixedClock{At: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, prop.ID, UpdateInput{
		StartDate:       calendar.Date(2024, 1, 1),
		EndDate:         calendar.Date(2024, 12, 31),
		FeeType:         billing.FeeTypePercentage,
		BaseAmount:      decimal.NewFromInt(10),
		EligibleCharges: billing.EligibleEveryCharge,
		ChargeDaily:     true,
		GracePeriodType: billing.GracePeriodNone,
	})
	require.ErrorIs(t, err, billing.ErrValidation)

	saved, err := svc.Update(ctx, prop.ID, UpdateInput{
		StartDate:        calendar.Date(2024, 1, 1),
		EndDate:          calendar.Date(2024, 12, 31),
		FeeType:          billing.FeeTypePercentage,
		BaseAmount:       decimal.NewFromInt(10),
		EligibleCharges:  billing.EligibleEveryCharge,
		ChargeDaily:      true,
		DailyCapPerMonth: decimal.NewFromInt(100),
		GracePeriodType:  billing.GracePeriodTillDayOfMonth,
		GracePeriodValue: 5,
	})
	require.NoError(t, err)
	require.Equal(t, billing.FeeTypePercentage, saved.FeeType)

	res, err := svc.Get(ctx, prop.ID)
	require.NoError(t, err)
	require.True(t, res.Policy.ChargeDaily)
	require.Equal(t, 5, res.Policy.GracePeriodValue)
}

func TestServiceUpdateMissingPolicy(t *testing.T) {
	store := billingtest.New()
	prop := store.AddProperty(billing.Property{Name: "Harbor"})
	svc := NewService(store, nil, nil)

	_, err := svc.Update(context.Background(), prop.ID, UpdateInput{
		StartDate: calendar.Date(2024, 1, 1), EndDate: calendar.Date(2024, 1, 2),
		FeeType: billing.FeeTypeFlat, GracePeriodType: billing.GracePeriodNone,
	})
	require.ErrorIs(t, err, billing.ErrNotFound)
}
