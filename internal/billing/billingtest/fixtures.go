package billingtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

// Tenancy is a property with one unit and one lease.
type Tenancy struct {
	Property billing.Property
	Unit     billing.Unit
	Lease    billing.Lease
}

// TenancyOptions shapes SeedTenancy.
type TenancyOptions struct {
	Cycle    billing.RentCycle
	Rent     string
	Start    time.Time
	End      time.Time
	Status   billing.LeaseStatus
	TenantID int64
	Timezone string
}

// SeedTenancy inserts a property, a unit and a lease. Unset options default to
// an ACTIVE monthly lease of 1000 for tenant 77 starting 2024-01-01.
func (s *Store) SeedTenancy(opts TenancyOptions) Tenancy {
	if opts.Cycle == "" {
		opts.Cycle = billing.RentCycleMonthly
	}
	if opts.Rent == "" {
		opts.Rent = "1000"
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.End.IsZero() {
		opts.End = opts.Start.AddDate(1, 0, -1)
	}
	if opts.Status == "" {
		opts.Status = billing.LeaseStatusActive
	}
	if opts.TenantID == 0 {
		opts.TenantID = 77
	}
	prop := s.AddProperty(billing.Property{Name: "Harbor View", Timezone: opts.Timezone, DefaultRentCycle: opts.Cycle})
	unit := s.AddUnit(billing.Unit{PropertyID: prop.ID, Name: "A-101"})
	lease := s.AddLease(billing.Lease{
		UnitID:          unit.ID,
		PrimaryTenantID: opts.TenantID,
		RentCycle:       opts.Cycle,
		RentAmount:      decimal.RequireFromString(opts.Rent),
		StartDate:       opts.Start,
		EndDate:         opts.End,
		Status:          opts.Status,
	})
	return Tenancy{Property: prop, Unit: unit, Lease: lease}
}

// FlatPolicy seeds a FLAT policy without grace covering 2024.
func (s *Store) FlatPolicy(propertyID int64, base string) billing.LateFeePolicy {
	return s.SetPolicy(billing.LateFeePolicy{
		PropertyID:       propertyID,
		StartDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		FeeType:          billing.FeeTypeFlat,
		BaseAmount:       decimal.RequireFromString(base),
		EligibleCharges:  billing.EligibleEveryCharge,
		DailyCapPerMonth: decimal.Zero,
		GracePeriodType:  billing.GracePeriodNone,
	})
}
