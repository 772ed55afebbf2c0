// Package assessment derives late-fee and payable figures from an invoice, its
// bound charges and the property policy. Nothing here touches storage.
package assessment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
)

var hundred = decimal.NewFromInt(100)

// Assessed is an invoice augmented with its derived fields.
type Assessed struct {
	billing.Invoice
	Charges []billing.Charge

	ChargesAmount          decimal.Decimal
	RecurringAmount        decimal.Decimal
	ChargesAndRent         decimal.Decimal
	RecurringChargesAmount decimal.Decimal
	EligibleAmount         decimal.Decimal
	LateFee                decimal.Decimal
	NumberOfDaysLate       int
	DailyLateFee           decimal.Decimal
	PayableLateFee         decimal.Decimal
	PayableAmount          decimal.Decimal
	IsLateFeeApplicable    bool
}

// Assess evaluates the derived fields of inv as of the civil date today. Amounts
// are left unrounded.
func Assess(inv billing.Invoice, charges []billing.Charge, resolved policy.Resolved, today time.Time) Assessed {
	p := resolved.Policy
	out := Assessed{Invoice: inv, Charges: charges}

	out.ChargesAmount = decimal.Zero
	out.RecurringAmount = decimal.Zero
	for _, ch := range charges {
		if ch.Type == billing.ChargeTypeOneTime {
			out.ChargesAmount = out.ChargesAmount.Add(ch.Amount)
		}
		if ch.ParentChargeID != nil {
			out.RecurringAmount = out.RecurringAmount.Add(ch.Amount)
		}
	}
	out.ChargesAndRent = out.ChargesAmount.Add(inv.RentAmount)
	out.RecurringChargesAmount = out.RecurringAmount.Add(inv.RentAmount)

	out.IsLateFeeApplicable = inv.DueDate.Before(today) && !resolved.IsExpired

	switch p.EligibleCharges {
	case billing.EligibleEveryCharge:
		out.EligibleAmount = out.ChargesAndRent
	case billing.EligibleAllRecurringCharges:
		out.EligibleAmount = out.RecurringChargesAmount
	default:
		out.EligibleAmount = inv.RentAmount
	}

	switch p.FeeType {
	case billing.FeeTypePercentage:
		out.LateFee = p.BaseAmount.Div(hundred).Mul(out.EligibleAmount)
	default:
		out.LateFee = p.BaseAmount
	}

	out.NumberOfDaysLate = calendar.DaysBetween(inv.DueDate, today)
	if out.NumberOfDaysLate < 0 {
		out.NumberOfDaysLate = 0
	}
	out.DailyLateFee = out.LateFee.Mul(decimal.NewFromInt(int64(out.NumberOfDaysLate)))

	switch {
	case !p.ChargeDaily:
		out.PayableLateFee = out.LateFee
	case out.DailyLateFee.LessThanOrEqual(p.DailyCapPerMonth):
		out.PayableLateFee = out.DailyLateFee
	default:
		out.PayableLateFee = p.DailyCapPerMonth
	}

	out.PayableAmount = out.ChargesAndRent.Add(inv.ArrearsAmount)
	if out.IsLateFeeApplicable {
		out.PayableAmount = out.PayableAmount.Add(out.PayableLateFee)
	}
	return out
}

// AppliedLateFee is the late fee actually included in PayableAmount.
func (a Assessed) AppliedLateFee() decimal.Decimal {
	if !a.IsLateFeeApplicable || a.PayableLateFee.IsNegative() {
		return decimal.Zero
	}
	return a.PayableLateFee
}
