package postgres

import (
	"context"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

type propertyRepo struct{ q db.Querier }

func (r propertyRepo) GetProperty(ctx context.Context, id int64) (billing.Property, error) {
	var p billing.Property
	err := r.q.QueryRow(ctx, `
		SELECT id, name, timezone, default_rent_cycle, pets_allowed, smoking_allowed
		FROM properties WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Timezone, &p.DefaultRentCycle, &p.PetsAllowed, &p.SmokingAllowed)
	if err != nil {
		return billing.Property{}, notFound(err, "property", id)
	}
	return p, nil
}

func (r propertyRepo) GetUnit(ctx context.Context, id int64) (billing.Unit, error) {
	var u billing.Unit
	err := r.q.QueryRow(ctx, `SELECT id, property_id, name FROM units WHERE id=$1`, id).
		Scan(&u.ID, &u.PropertyID, &u.Name)
	if err != nil {
		return billing.Unit{}, notFound(err, "unit", id)
	}
	return u, nil
}

type policyRepo struct{ q db.Querier }

const policyColumns = `id, property_id, start_date, end_date, fee_type, base_amount, eligible_charges,
	charge_daily, daily_cap_per_month, grace_period_type, grace_period_value, updated_at`

func (r policyRepo) GetLateFeePolicy(ctx context.Context, propertyID int64) (billing.LateFeePolicy, error) {
	var p billing.LateFeePolicy
	err := r.q.QueryRow(ctx, `SELECT `+policyColumns+` FROM late_fee_policies WHERE property_id=$1`, propertyID).
		Scan(&p.ID, &p.PropertyID, &p.StartDate, &p.EndDate, &p.FeeType, &p.BaseAmount, &p.EligibleCharges,
			&p.ChargeDaily, &p.DailyCapPerMonth, &p.GracePeriodType, &p.GracePeriodValue, &p.UpdatedAt)
	if err != nil {
		return billing.LateFeePolicy{}, notFound(err, "late fee policy for property", propertyID)
	}
	return p, nil
}

func (r policyRepo) UpdateLateFeePolicy(ctx context.Context, p billing.LateFeePolicy) (billing.LateFeePolicy, error) {
	err := r.q.QueryRow(ctx, `
		UPDATE late_fee_policies SET
			start_date=$2, end_date=$3, fee_type=$4, base_amount=$5, eligible_charges=$6,
			charge_daily=$7, daily_cap_per_month=$8, grace_period_type=$9, grace_period_value=$10, updated_at=$11
		WHERE property_id=$1
		RETURNING id`,
		p.PropertyID, p.StartDate, p.EndDate, p.FeeType, p.BaseAmount, p.EligibleCharges,
		p.ChargeDaily, p.DailyCapPerMonth, p.GracePeriodType, p.GracePeriodValue, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return billing.LateFeePolicy{}, notFound(err, "late fee policy for property", p.PropertyID)
	}
	return p, nil
}
