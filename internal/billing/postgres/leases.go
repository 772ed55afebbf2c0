package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

type leaseRepo struct{ q db.Querier }

const leaseColumns = `l.id, l.unit_id, l.primary_tenant_id, l.rent_cycle, l.rent_amount, l.start_date, l.end_date, l.status`

func scanLease(row pgx.Row, extra ...any) (billing.Lease, error) {
	var l billing.Lease
	dest := append([]any{&l.ID, &l.UnitID, &l.PrimaryTenantID, &l.RentCycle, &l.RentAmount, &l.StartDate, &l.EndDate, &l.Status}, extra...)
	err := row.Scan(dest...)
	return l, err
}

func (r leaseRepo) GetLease(ctx context.Context, id int64) (billing.Lease, error) {
	l, err := scanLease(r.q.QueryRow(ctx, `SELECT `+leaseColumns+` FROM leases l WHERE l.id=$1`, id))
	if err != nil {
		return billing.Lease{}, notFound(err, "lease", id)
	}
	return l, nil
}

func (r leaseRepo) LockActiveLease(ctx context.Context, unitID int64) (billing.Lease, error) {
	l, err := scanLease(r.q.QueryRow(ctx, `
		SELECT `+leaseColumns+` FROM leases l
		WHERE l.unit_id=$1 AND l.status='ACTIVE'
		ORDER BY l.id
		LIMIT 1
		FOR UPDATE`, unitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Lease{}, billing.ErrNoActiveLease
	}
	if err != nil {
		return billing.Lease{}, fmt.Errorf("postgres: lock lease for unit %d: %w", unitID, err)
	}
	return l, nil
}

func (r leaseRepo) ListActiveSchedules(ctx context.Context) ([]billing.LeaseSchedule, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+leaseColumns+`, u.property_id, p.timezone, MAX(i.interval_end)
		FROM leases l
		JOIN units u ON u.id = l.unit_id
		JOIN properties p ON p.id = u.property_id
		LEFT JOIN invoices i ON i.lease_id = l.id
		WHERE l.status='ACTIVE'
		GROUP BY l.id, u.property_id, p.timezone
		ORDER BY u.property_id, l.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active leases: %w", err)
	}
	defer rows.Close()

	var out []billing.LeaseSchedule
	for rows.Next() {
		var (
			sched   billing.LeaseSchedule
			lastEnd pgtype.Date
		)
		sched.Lease, err = scanLease(rows, &sched.PropertyID, &sched.Timezone, &lastEnd)
		if err != nil {
			return nil, err
		}
		if lastEnd.Valid {
			end := time.Date(lastEnd.Time.Year(), lastEnd.Time.Month(), lastEnd.Time.Day(), 0, 0, 0, 0, time.UTC)
			sched.LastIntervalEnd = &end
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}
