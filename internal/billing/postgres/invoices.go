package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

type invoiceRepo struct{ q db.Querier }

const invoiceColumns = `i.id, i.lease_id, i.unit_id, i.property_id, i.interval_start, i.interval_end, i.due_date,
	i.rent_amount, i.arrears_amount, i.arrear_of, i.total_paid, i.payed_at, i.payed_late_fee, i.status,
	i.created_at, i.updated_at`

func scanInvoice(row pgx.Row) (billing.Invoice, error) {
	var inv billing.Invoice
	err := row.Scan(&inv.ID, &inv.LeaseID, &inv.UnitID, &inv.PropertyID, &inv.IntervalStart, &inv.IntervalEnd, &inv.DueDate,
		&inv.RentAmount, &inv.ArrearsAmount, &inv.ArrearOf, &inv.TotalPaid, &inv.PayedAt, &inv.PayedLateFee, &inv.Status,
		&inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func collectInvoices(rows pgx.Rows) ([]billing.Invoice, error) {
	defer rows.Close()
	var out []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r invoiceRepo) InsertInvoice(ctx context.Context, inv billing.Invoice) (billing.Invoice, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO invoices (lease_id, unit_id, property_id, interval_start, interval_end, due_date,
			rent_amount, arrears_amount, arrear_of, total_paid, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,COALESCE($12, NOW()),COALESCE($12, NOW()))
		RETURNING id, created_at, updated_at`,
		inv.LeaseID, inv.UnitID, inv.PropertyID, inv.IntervalStart, inv.IntervalEnd, inv.DueDate,
		billing.RoundMoney(inv.RentAmount), billing.RoundMoney(inv.ArrearsAmount), inv.ArrearOf,
		billing.RoundMoney(inv.TotalPaid), inv.Status, nullableTime(inv.CreatedAt),
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return billing.Invoice{}, insertInvoiceError(err, inv)
	}
	return inv, nil
}

func insertInvoiceError(err error, inv billing.Invoice) error {
	if db.IsUniqueViolation(err, "invoices_lease_interval") {
		return fmt.Errorf("lease %d interval %s: %w", inv.LeaseID, inv.IntervalStart.Format(time.DateOnly), billing.ErrIntervalOverlap)
	}
	return fmt.Errorf("postgres: insert invoice for lease %d: %w", inv.LeaseID, err)
}

func (r invoiceRepo) GetInvoice(ctx context.Context, id int64) (billing.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id=$1`, id))
	if err != nil {
		return billing.Invoice{}, notFound(err, "invoice", id)
	}
	return inv, nil
}

func (r invoiceRepo) LockInvoice(ctx context.Context, id int64) (billing.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id=$1 FOR UPDATE`, id))
	if err != nil {
		return billing.Invoice{}, notFound(err, "invoice", id)
	}
	return inv, nil
}

func (r invoiceRepo) ListForLease(ctx context.Context, leaseID int64) ([]billing.Invoice, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices i
		WHERE i.lease_id=$1
		ORDER BY i.created_at, i.id`, leaseID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list invoices for lease %d: %w", leaseID, err)
	}
	return collectInvoices(rows)
}

func (r invoiceRepo) RollIntoArrears(ctx context.Context, successorID int64, predecessorIDs []int64) error {
	if len(predecessorIDs) == 0 {
		return nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices SET arrear_of=$1, arrears_amount=0, updated_at=NOW()
		WHERE id = ANY($2)`, successorID, predecessorIDs)
	if err != nil {
		return fmt.Errorf("postgres: roll invoices into %d: %w", successorID, err)
	}
	if int(tag.RowsAffected()) != len(predecessorIDs) {
		return fmt.Errorf("roll into %d: %w", successorID, billing.ErrNotFound)
	}
	return nil
}

func (r invoiceRepo) UpdateInvoice(ctx context.Context, inv billing.Invoice) error {
	var lateFee any
	if inv.PayedLateFee.Valid {
		lateFee = billing.RoundMoney(inv.PayedLateFee.Decimal)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices SET
			due_date=$2, rent_amount=$3, arrears_amount=$4, arrear_of=$5, total_paid=$6,
			payed_at=$7, payed_late_fee=$8, status=$9, updated_at=NOW()
		WHERE id=$1`,
		inv.ID, inv.DueDate, billing.RoundMoney(inv.RentAmount), billing.RoundMoney(inv.ArrearsAmount), inv.ArrearOf,
		billing.RoundMoney(inv.TotalPaid), inv.PayedAt, lateFee, inv.Status)
	if err != nil {
		return fmt.Errorf("postgres: update invoice %d: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d: %w", inv.ID, billing.ErrNotFound)
	}
	return nil
}

func (r invoiceRepo) List(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	var cond conditions
	if f.PropertyID != 0 {
		cond.add("i.property_id = ?", f.PropertyID)
	}
	if f.UnitID != 0 {
		cond.add("i.unit_id = ?", f.UnitID)
	}
	if f.LeaseID != 0 {
		cond.add("i.lease_id = ?", f.LeaseID)
	}
	if f.DueDate != nil {
		cond.add("i.due_date = ?", *f.DueDate)
	}
	if f.Status != "" {
		cond.add("i.status = ?", f.Status)
	}
	if f.ArrearOf != 0 {
		cond.add("i.arrear_of = ?", f.ArrearOf)
	}
	if f.CreatedFrom != nil {
		cond.add("i.created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		cond.add("i.created_at < ?", *f.CreatedTo)
	}
	rows, err := r.q.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices i`+cond.where()+` ORDER BY i.created_at, i.id`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list invoices: %w", err)
	}
	return collectInvoices(rows)
}
