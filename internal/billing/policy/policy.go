// Package policy resolves the late-fee policy in force for a property.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
)

// Resolved is a policy plus its standing on a given day.
type Resolved struct {
	Policy     billing.LateFeePolicy
	IsExpired  bool
	IsSentinel bool
}

// Sentinel is returned for properties without a policy row so downstream
// arithmetic never branches on a missing value.
func Sentinel(propertyID int64) billing.LateFeePolicy {
	return billing.LateFeePolicy{
		PropertyID:       propertyID,
		FeeType:          billing.FeeTypeFlat,
		BaseAmount:       decimal.Zero,
		EligibleCharges:  billing.EligibleOnlyRecurringRent,
		DailyCapPerMonth: decimal.Zero,
		GracePeriodType:  billing.GracePeriodNone,
	}
}

// Resolve loads and validates the policy of a property as of the civil date today.
// Expired policies are still returned so callers can read their grace period.
func Resolve(ctx context.Context, store billing.PolicyStore, propertyID int64, today time.Time) (Resolved, error) {
	p, err := store.GetLateFeePolicy(ctx, propertyID)
	if errors.Is(err, billing.ErrNotFound) {
		return Resolved{Policy: Sentinel(propertyID), IsSentinel: true}, nil
	}
	if err != nil {
		return Resolved{}, fmt.Errorf("policy: load property %d: %w", propertyID, err)
	}
	if err := p.Validate(); err != nil {
		return Resolved{}, fmt.Errorf("policy: property %d: %w", propertyID, err)
	}
	return Resolved{Policy: p, IsExpired: today.After(p.EndDate)}, nil
}

// DueDate applies the grace period to the civil date today. An expired policy
// grants no grace.
func DueDate(r Resolved, today time.Time) time.Time {
	if r.IsExpired {
		return today
	}
	switch r.Policy.GracePeriodType {
	case billing.GracePeriodNumberOfDays:
		return calendar.AddDays(today, r.Policy.GracePeriodValue)
	case billing.GracePeriodTillDayOfMonth:
		return calendar.WithDay(today, r.Policy.GracePeriodValue)
	default:
		return today
	}
}

// UpdateInput carries the mutable policy fields.
type UpdateInput struct {
	StartDate        time.Time
	EndDate          time.Time
	FeeType          billing.FeeType
	BaseAmount       decimal.Decimal
	EligibleCharges  billing.EligibleCharges
	ChargeDaily      bool
	DailyCapPerMonth decimal.Decimal
	GracePeriodType  billing.GracePeriodType
	GracePeriodValue int
}

// Service exposes policy reads and administrative updates.
type Service struct {
	uow    billing.UnitOfWork
	clock  calendar.Clock
	logger *slog.Logger
}

// NewService constructs the policy service.
func NewService(uow billing.UnitOfWork, clock calendar.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, clock: clock, logger: logger}
}

// Get resolves the policy of a property for today in the property zone.
func (s *Service) Get(ctx context.Context, propertyID int64) (Resolved, error) {
	prop, err := s.uow.Properties().GetProperty(ctx, propertyID)
	if err != nil {
		return Resolved{}, err
	}
	return Resolve(ctx, s.uow.Policies(), propertyID, calendar.Today(s.clock, prop.Location()))
}

// Update validates and persists a mutated policy. Policies are created with the
// property, so a missing row is reported as not found.
func (s *Service) Update(ctx context.Context, propertyID int64, in UpdateInput) (billing.LateFeePolicy, error) {
	var saved billing.LateFeePolicy
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx billing.Stores) error {
		current, err := tx.Policies().GetLateFeePolicy(ctx, propertyID)
		if err != nil {
			return err
		}
		next := current
		next.StartDate = in.StartDate
		next.EndDate = in.EndDate
		next.FeeType = in.FeeType
		next.BaseAmount = billing.RoundMoney(in.BaseAmount)
		next.EligibleCharges = in.EligibleCharges
		next.ChargeDaily = in.ChargeDaily
		next.DailyCapPerMonth = billing.RoundMoney(in.DailyCapPerMonth)
		next.GracePeriodType = in.GracePeriodType
		next.GracePeriodValue = in.GracePeriodValue
		next.UpdatedAt = s.clock.Now()
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", billing.ErrValidation, err)
		}
		saved, err = tx.Policies().UpdateLateFeePolicy(ctx, next)
		return err
	})
	if err != nil {
		return billing.LateFeePolicy{}, err
	}
	s.logger.Info("late fee policy updated", slog.Int64("property_id", propertyID), slog.String("fee_type", string(saved.FeeType)))
	return saved, nil
}
