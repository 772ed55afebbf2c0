// Package charges manages recurring charge templates and the one-time charges
// they spawn on every billing tick.
package charges

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
)

// Subscription narrows materialisation to one tenant of the unit. Zero means any.
type Subscription struct {
	TenantID int64
}

// ListRecurringTemplates returns every recurring template matching scope.
func ListRecurringTemplates(ctx context.Context, store billing.ChargeStore, scope billing.ChargeScope) ([]billing.Charge, error) {
	templates, err := store.ListRecurring(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("charges: list recurring: %w", err)
	}
	return templates, nil
}

// MaterializeRecurringForUnit spawns one UNPAID one-time child per matching
// template and returns the number created. Callers invoke it once per tick.
func MaterializeRecurringForUnit(ctx context.Context, store billing.ChargeStore, unit billing.Unit, sub Subscription, now time.Time) (int, error) {
	templates, err := ListRecurringTemplates(ctx, store, billing.ChargeScope{UnitID: unit.ID, TenantID: sub.TenantID})
	if err != nil {
		return 0, err
	}
	created := 0
	for _, tmpl := range templates {
		parent := tmpl.ID
		child := billing.Charge{
			Title:          tmpl.Title,
			Description:    tmpl.Description,
			Notes:          tmpl.Notes,
			Amount:         tmpl.Amount,
			GLAccountID:    tmpl.GLAccountID,
			TenantID:       tmpl.TenantID,
			PropertyID:     unit.PropertyID,
			UnitID:         unit.ID,
			Type:           billing.ChargeTypeOneTime,
			Status:         billing.ChargeStatusUnpaid,
			ParentChargeID: &parent,
			CreatedAt:      now,
		}
		if _, err := store.InsertCharge(ctx, child); err != nil {
			return created, fmt.Errorf("charges: materialize template %d: %w", tmpl.ID, err)
		}
		created++
	}
	return created, nil
}

// CreateInput describes a manually entered charge.
type CreateInput struct {
	Title       string
	Description string
	Notes       string
	Amount      decimal.Decimal
	GLAccountID *int64
	TenantID    int64
	UnitID      int64
	Type        billing.ChargeType
	Status      billing.ChargeStatus
}

// Service exposes charge administration and queries.
type Service struct {
	uow    billing.UnitOfWork
	clock  calendar.Clock
	logger *slog.Logger
}

// NewService constructs the charge service.
func NewService(uow billing.UnitOfWork, clock calendar.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, clock: clock, logger: logger}
}

// Create validates, normalises and stores a charge.
func (s *Service) Create(ctx context.Context, in CreateInput) (billing.Charge, error) {
	if strings.TrimSpace(in.Title) == "" {
		return billing.Charge{}, fmt.Errorf("%w: title required", billing.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return billing.Charge{}, fmt.Errorf("%w: amount must be positive", billing.ErrValidation)
	}
	switch in.Type {
	case billing.ChargeTypeOneTime, billing.ChargeTypeRecurring:
	default:
		return billing.Charge{}, fmt.Errorf("%w: unknown charge type %q", billing.ErrValidation, in.Type)
	}

	var saved billing.Charge
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		unit, err := tx.Properties().GetUnit(ctx, in.UnitID)
		if err != nil {
			return err
		}
		if in.GLAccountID != nil {
			acct, err := tx.Ledger().GetAccount(ctx, *in.GLAccountID)
			if err != nil {
				return err
			}
			if acct.AccountType != billing.AccountTypeIncome {
				return fmt.Errorf("%w: charge account %d is not an income account", billing.ErrValidation, acct.ID)
			}
		}
		charge, coerced := billing.Charge{
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Notes:       in.Notes,
			Amount:      billing.RoundMoney(in.Amount),
			GLAccountID: in.GLAccountID,
			TenantID:    in.TenantID,
			PropertyID:  unit.PropertyID,
			UnitID:      unit.ID,
			Type:        in.Type,
			Status:      in.Status,
			CreatedAt:   s.clock.Now(),
		}.Normalize()
		if coerced {
			s.logger.Warn("recurring charge status dropped",
				slog.Int64("unit_id", unit.ID),
				slog.String("status", string(in.Status)),
				slog.Any("error", billing.ErrChargeTypeContradiction))
		}
		saved, err = tx.Charges().InsertCharge(ctx, charge)
		return err
	})
	if err != nil {
		return billing.Charge{}, err
	}
	return saved, nil
}

// Delete retires a recurring template or removes an unbound one-time charge.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.uow.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		charge, err := tx.Charges().GetCharge(ctx, id)
		if err != nil {
			return err
		}
		if charge.InvoiceID != nil {
			return fmt.Errorf("charge %d: %w", id, billing.ErrChargeBound)
		}
		return tx.Charges().DeleteCharge(ctx, id)
	})
}

// List returns charges matching filter.
func (s *Service) List(ctx context.Context, filter billing.ChargeFilter) ([]billing.Charge, error) {
	return s.uow.Charges().List(ctx, filter)
}

// Templates returns recurring templates matching scope.
func (s *Service) Templates(ctx context.Context, scope billing.ChargeScope) ([]billing.Charge, error) {
	return ListRecurringTemplates(ctx, s.uow.Charges(), scope)
}
