package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/assessment"
)

// SettlementRef is the deterministic event reference of an invoice settlement.
func SettlementRef(invoiceID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("INVOICE_SETTLED:%d", invoiceID)))
}

// CashAccount is the property's cash and bank account.
func CashAccount(propertyID int64) billing.GLAccountKey {
	return billing.GLAccountKey{
		HolderKind:  billing.HolderProperty,
		HolderID:    propertyID,
		AccountType: billing.AccountTypeAsset,
		SubType:     billing.SubTypeCashAndBank,
	}
}

// IncomeAccount is a unit-held income account.
func IncomeAccount(unitID int64, subType billing.AccountSubType, label string) billing.GLAccountKey {
	return billing.GLAccountKey{
		HolderKind:  billing.HolderUnit,
		HolderID:    unitID,
		AccountType: billing.AccountTypeIncome,
		SubType:     subType,
		Label:       label,
	}
}

// SettlementEvent builds the journal for a settled invoice: one cash debit and
// one income credit per component (rent, each charge, late fee, arrears).
func SettlementEvent(a assessment.Assessed, at time.Time) Event {
	cash := CashAccount(a.PropertyID)
	ev := Event{
		Ref:         SettlementRef(a.ID),
		Description: fmt.Sprintf("Invoice %d settlement", a.ID),
		At:          at,
	}
	add := func(credit Line) {
		if !credit.Amount.IsPositive() {
			return
		}
		credit.Direction = billing.DirectionCredit
		ev.Lines = append(ev.Lines,
			Line{Account: cash, Direction: billing.DirectionDebit, Amount: credit.Amount, Description: credit.Description},
			credit,
		)
	}

	add(Line{
		Account:     IncomeAccount(a.UnitID, billing.SubTypeRentalIncome, billing.LabelRent),
		Amount:      a.RentAmount,
		Description: fmt.Sprintf("Invoice %d rent", a.ID),
	})
	for _, ch := range a.Charges {
		if ch.Type != billing.ChargeTypeOneTime {
			continue
		}
		line := Line{
			Account:     IncomeAccount(a.UnitID, billing.SubTypeOtherIncome, billing.LabelCharge),
			Amount:      ch.Amount,
			Description: fmt.Sprintf("Invoice %d charge %s", a.ID, ch.Title),
		}
		if ch.GLAccountID != nil {
			line.AccountID = *ch.GLAccountID
		}
		add(line)
	}
	add(Line{
		Account:     IncomeAccount(a.UnitID, billing.SubTypeOtherIncome, billing.LabelLateFee),
		Amount:      a.AppliedLateFee(),
		Description: fmt.Sprintf("Invoice %d late fee", a.ID),
	})
	add(Line{
		Account:     IncomeAccount(a.UnitID, billing.SubTypeOtherIncome, billing.LabelArrears),
		Amount:      a.ArrearsAmount,
		Description: fmt.Sprintf("Invoice %d arrears", a.ID),
	})
	return ev
}

// DebitTotal is the cash received by an event.
func DebitTotal(ev Event) decimal.Decimal {
	debit, _ := Totals(ev.Lines)
	return debit
}
