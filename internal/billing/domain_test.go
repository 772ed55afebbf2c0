package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validPolicy() LateFeePolicy {
	return LateFeePolicy{
		StartDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		FeeType:         FeeTypeFlat,
		BaseAmount:      decimal.NewFromInt(50),
		EligibleCharges: EligibleEveryCharge,
		GracePeriodType: GracePeriodNone,
	}
}

func TestLateFeePolicyValidate(t *testing.T) {
	require.NoError(t, validPolicy().Validate())

	cases := map[string]func(*LateFeePolicy){
		"end before start": func(p *LateFeePolicy) { p.EndDate = p.StartDate.AddDate(0, 0, -1) },
		"daily without cap": func(p *LateFeePolicy) { p.ChargeDaily = true },
		"grace day zero": func(p *LateFeePolicy) {
			p.GracePeriodType = GracePeriodTillDayOfMonth
			p.GracePeriodValue = 0
		},
		"grace day 29": func(p *LateFeePolicy) {
			p.GracePeriodType = GracePeriodTillDayOfMonth
			p.GracePeriodValue = 29
		},
		"negative base":  func(p *LateFeePolicy) { p.BaseAmount = decimal.NewFromInt(-1) },
		"unknown fee":    func(p *LateFeePolicy) { p.FeeType = "TIERED" },
		"negative grace": func(p *LateFeePolicy) { p.GracePeriodType = GracePeriodNumberOfDays; p.GracePeriodValue = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPolicy()
			mutate(&p)
			require.True(t, errors.Is(p.Validate(), ErrPolicyInvariant))
		})
	}

	capped := validPolicy()
	capped.ChargeDaily = true
	capped.DailyCapPerMonth = decimal.NewFromInt(100)
	require.NoError(t, capped.Validate())

	till := validPolicy()
	till.GracePeriodType = GracePeriodTillDayOfMonth
	till.GracePeriodValue = 28
	require.NoError(t, till.Validate())
}

func TestPaymentValidate(t *testing.T) {
	acct := int64(9)
	require.NoError(t, Payment{Method: PaymentMethodBankTransfer, AccountID: &acct}.Validate())
	require.NoError(t, Payment{Method: PaymentMethodCard}.Validate())
	require.ErrorIs(t, Payment{Method: PaymentMethodBankTransfer}.Validate(), ErrInvalidPaymentMethod)
	require.ErrorIs(t, Payment{Method: PaymentMethodCard, AccountID: &acct}.Validate(), ErrInvalidPaymentMethod)
	require.ErrorIs(t, Payment{Method: "CASH"}.Validate(), ErrInvalidPaymentMethod)
}

func TestGLAccountKeyValidate(t *testing.T) {
	ok := GLAccountKey{HolderKind: HolderUnit, HolderID: 3, AccountType: AccountTypeIncome, SubType: SubTypeRentalIncome, Label: LabelRent}
	require.NoError(t, ok.Validate())

	wrongType := ok
	wrongType.AccountType = AccountTypeAsset
	require.ErrorIs(t, wrongType.Validate(), ErrValidation)

	noHolder := ok
	noHolder.HolderKind = "TENANT"
	require.ErrorIs(t, noHolder.Validate(), ErrValidation)
}

func TestLeaseInEffect(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	lease := Lease{Status: LeaseStatusActive, StartDate: day(5), EndDate: day(20)}

	require.False(t, lease.InEffect(day(4)))
	require.True(t, lease.InEffect(day(5)))
	require.True(t, lease.InEffect(day(20)))
	require.False(t, lease.InEffect(day(21)))

	lease.Status = LeaseStatusClosed
	require.False(t, lease.InEffect(day(10)))
}

func TestRoundMoneyHalfUp(t *testing.T) {
	require.Equal(t, "123.46", RoundMoney(decimal.RequireFromString("123.455")).StringFixed(2))
	require.Equal(t, "-0.01", RoundMoney(decimal.RequireFromString("-0.005")).StringFixed(2))
	require.Equal(t, "10.00", RoundMoney(decimal.RequireFromString("10.004")).StringFixed(2))
}

func TestChargeNormalize(t *testing.T) {
	inv := int64(4)
	got, coerced := Charge{Type: ChargeTypeRecurring, Status: ChargeStatusUnpaid, InvoiceID: &inv}.Normalize()
	require.True(t, coerced)
	require.Equal(t, ChargeStatusNone, got.Status)
	require.Nil(t, got.InvoiceID)

	got, coerced = Charge{Type: ChargeTypeRecurring}.Normalize()
	require.False(t, coerced)
	require.Equal(t, ChargeStatusNone, got.Status)

	got, coerced = Charge{Type: ChargeTypeOneTime}.Normalize()
	require.False(t, coerced)
	require.Equal(t, ChargeStatusUnpaid, got.Status)
}
