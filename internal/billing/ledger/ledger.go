// Package ledger posts balanced double-entry events to the general ledger and
// answers ledger queries.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

// Line is one side of a posting. AccountID wins over Account when set.
type Line struct {
	AccountID   int64
	Account     billing.GLAccountKey
	Direction   billing.Direction
	Amount      decimal.Decimal
	Description string
}

// Event groups the lines of one business event.
type Event struct {
	Ref         uuid.UUID
	Description string
	At          time.Time
	Lines       []Line
}

// Totals sums debit and credit amounts.
func Totals(lines []Line) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		if l.Direction == billing.DirectionDebit {
			debit = debit.Add(l.Amount)
		} else {
			credit = credit.Add(l.Amount)
		}
	}
	return debit, credit
}

// Validate checks the event shape and that it balances.
func (e Event) Validate() error {
	if e.Ref == uuid.Nil {
		return fmt.Errorf("%w: ledger event requires a reference", billing.ErrValidation)
	}
	if len(e.Lines) < 2 {
		return fmt.Errorf("%w: ledger event requires at least two lines", billing.ErrValidation)
	}
	for idx, l := range e.Lines {
		if l.Direction != billing.DirectionDebit && l.Direction != billing.DirectionCredit {
			return fmt.Errorf("%w: line %d has direction %q", billing.ErrValidation, idx, l.Direction)
		}
		if l.Amount.IsNegative() {
			return fmt.Errorf("%w: line %d is negative", billing.ErrValidation, idx)
		}
	}
	debit, credit := Totals(e.Lines)
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", billing.ErrLedgerImbalance, debit, credit)
	}
	return nil
}

// Post validates the event, resolves its accounts and appends the rows. The
// balance is checked again after rounding so persisted rows always balance.
func Post(ctx context.Context, store billing.LedgerStore, ev Event) ([]billing.GLTransaction, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	rows := make([]billing.GLTransaction, 0, len(ev.Lines))
	debit, credit := decimal.Zero, decimal.Zero
	for idx, l := range ev.Lines {
		accountID := l.AccountID
		if accountID == 0 {
			if err := l.Account.Validate(); err != nil {
				return nil, fmt.Errorf("ledger: line %d: %w", idx, err)
			}
			acct, err := store.EnsureAccount(ctx, l.Account)
			if err != nil {
				return nil, fmt.Errorf("ledger: resolve account for line %d: %w", idx, err)
			}
			accountID = acct.ID
		}
		amount := billing.RoundMoney(l.Amount)
		if l.Direction == billing.DirectionDebit {
			debit = debit.Add(amount)
		} else {
			credit = credit.Add(amount)
		}
		desc := l.Description
		if desc == "" {
			desc = ev.Description
		}
		rows = append(rows, billing.GLTransaction{
			GLAccountID: accountID,
			Direction:   l.Direction,
			Amount:      amount,
			Description: desc,
			EventRef:    ev.Ref,
			CreatedAt:   ev.At,
		})
	}
	if !debit.Equal(credit) {
		return nil, fmt.Errorf("%w: rounded debit %s credit %s", billing.ErrLedgerImbalance, debit, credit)
	}
	if err := store.AppendTransactions(ctx, rows); err != nil {
		return nil, fmt.Errorf("ledger: append: %w", err)
	}
	return rows, nil
}

// Service answers ledger queries.
type Service struct {
	stores billing.Stores
}

// NewService constructs the ledger query service.
func NewService(stores billing.Stores) *Service {
	return &Service{stores: stores}
}

// Accounts lists accounts matching filter.
func (s *Service) Accounts(ctx context.Context, filter billing.AccountFilter) ([]billing.GLAccount, error) {
	return s.stores.Ledger().ListAccounts(ctx, filter)
}

// Transactions lists journal rows matching filter.
func (s *Service) Transactions(ctx context.Context, filter billing.TransactionFilter) ([]billing.GLTransaction, error) {
	return s.stores.Ledger().ListTransactions(ctx, filter)
}

// UnbalancedEvents reports every event whose persisted rows do not balance.
func (s *Service) UnbalancedEvents(ctx context.Context) ([]billing.EventBalance, error) {
	return s.stores.Ledger().UnbalancedEvents(ctx)
}
