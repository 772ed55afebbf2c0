package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

type chargeRepo struct{ q db.Querier }

const chargeColumns = `c.id, c.title, c.description, c.notes, c.amount, c.gl_account_id, c.tenant_id,
	c.property_id, c.unit_id, c.type, c.status, c.parent_charge_id, c.invoice_id, c.created_at, c.retired_at`

func scanCharge(row pgx.Row) (billing.Charge, error) {
	var (
		c      billing.Charge
		status pgtype.Text
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Notes, &c.Amount, &c.GLAccountID, &c.TenantID,
		&c.PropertyID, &c.UnitID, &c.Type, &status, &c.ParentChargeID, &c.InvoiceID, &c.CreatedAt, &c.RetiredAt)
	if status.Valid {
		c.Status = billing.ChargeStatus(status.String)
	}
	return c, err
}

func collectCharges(rows pgx.Rows) ([]billing.Charge, error) {
	defer rows.Close()
	var out []billing.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullableStatus(s billing.ChargeStatus) pgtype.Text {
	return pgtype.Text{String: string(s), Valid: s != ""}
}

// InsertCharge coerces contradictory recurring rows before saving them.
func (r chargeRepo) InsertCharge(ctx context.Context, c billing.Charge) (billing.Charge, error) {
	c, coerced := c.Normalize()
	if coerced {
		slog.Default().Warn("recurring charge status dropped",
			slog.Int64("unit_id", c.UnitID),
			slog.Any("error", billing.ErrChargeTypeContradiction))
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO charges (title, description, notes, amount, gl_account_id, tenant_id, property_id, unit_id,
			type, status, parent_charge_id, invoice_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,COALESCE($13, NOW()))
		RETURNING id, created_at`,
		c.Title, c.Description, c.Notes, billing.RoundMoney(c.Amount), c.GLAccountID, c.TenantID, c.PropertyID, c.UnitID,
		c.Type, nullableStatus(c.Status), c.ParentChargeID, c.InvoiceID, nullableTime(c.CreatedAt),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if db.IsCheckViolation(err, "charges_recurring_unsettled") {
			return billing.Charge{}, billing.ErrChargeTypeContradiction
		}
		return billing.Charge{}, fmt.Errorf("postgres: insert charge: %w", err)
	}
	return c, nil
}

func (r chargeRepo) GetCharge(ctx context.Context, id int64) (billing.Charge, error) {
	c, err := scanCharge(r.q.QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges c WHERE c.id=$1 AND c.retired_at IS NULL`, id))
	if err != nil {
		return billing.Charge{}, notFound(err, "charge", id)
	}
	return c, nil
}

// DeleteCharge retires a recurring template and removes a one-time charge.
func (r chargeRepo) DeleteCharge(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE charges SET retired_at=NOW()
		WHERE id=$1 AND type='RECURRING' AND retired_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("postgres: retire charge %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	tag, err = r.q.Exec(ctx, `DELETE FROM charges WHERE id=$1 AND type='ONE_TIME'`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete charge %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("charge %d: %w", id, billing.ErrNotFound)
	}
	return nil
}

func (r chargeRepo) ListRecurring(ctx context.Context, scope billing.ChargeScope) ([]billing.Charge, error) {
	var cond conditions
	cond.add("c.type = ?", billing.ChargeTypeRecurring)
	cond.raw("c.retired_at IS NULL")
	if scope.PropertyID != 0 {
		cond.add("c.property_id = ?", scope.PropertyID)
	}
	if scope.UnitID != 0 {
		cond.add("c.unit_id = ?", scope.UnitID)
	}
	if scope.TenantID != 0 {
		cond.add("c.tenant_id = ?", scope.TenantID)
	}
	rows, err := r.q.Query(ctx, `SELECT `+chargeColumns+` FROM charges c`+cond.where()+` ORDER BY c.id`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recurring charges: %w", err)
	}
	return collectCharges(rows)
}

func (r chargeRepo) ListUnbilled(ctx context.Context, unitID int64, from, to time.Time) ([]billing.Charge, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+chargeColumns+` FROM charges c
		WHERE c.unit_id=$1 AND c.type='ONE_TIME' AND c.status='UNPAID' AND c.invoice_id IS NULL
			AND c.created_at >= $2 AND c.created_at < $3
		ORDER BY c.id
		FOR UPDATE`, unitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unbilled charges for unit %d: %w", unitID, err)
	}
	return collectCharges(rows)
}

func (r chargeRepo) BindToInvoice(ctx context.Context, invoiceID int64, chargeIDs []int64) (int, error) {
	if len(chargeIDs) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE charges SET invoice_id=$1
		WHERE id = ANY($2) AND invoice_id IS NULL AND type='ONE_TIME'`, invoiceID, chargeIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: bind charges to invoice %d: %w", invoiceID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r chargeRepo) ListByInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]billing.Charge, error) {
	out := map[int64][]billing.Charge{}
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+chargeColumns+` FROM charges c WHERE c.invoice_id = ANY($1) ORDER BY c.id`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list charges by invoice: %w", err)
	}
	list, err := collectCharges(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		out[*c.InvoiceID] = append(out[*c.InvoiceID], c)
	}
	return out, nil
}

func (r chargeRepo) SetStatusByInvoice(ctx context.Context, invoiceID int64, status billing.ChargeStatus) error {
	_, err := r.q.Exec(ctx, `UPDATE charges SET status=$2 WHERE invoice_id=$1`, invoiceID, nullableStatus(status))
	if err != nil {
		return fmt.Errorf("postgres: set charge status for invoice %d: %w", invoiceID, err)
	}
	return nil
}

func (r chargeRepo) List(ctx context.Context, f billing.ChargeFilter) ([]billing.Charge, error) {
	var cond conditions
	cond.raw("c.retired_at IS NULL")
	if f.PropertyID != 0 {
		cond.add("c.property_id = ?", f.PropertyID)
	}
	if f.UnitID != 0 {
		cond.add("c.unit_id = ?", f.UnitID)
	}
	if f.InvoiceID != 0 {
		cond.add("c.invoice_id = ?", f.InvoiceID)
	}
	if f.Type != "" {
		cond.add("c.type = ?", f.Type)
	}
	if f.Status != "" {
		cond.add("c.status = ?", f.Status)
	}
	if f.CreatedFrom != nil {
		cond.add("c.created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		cond.add("c.created_at < ?", *f.CreatedTo)
	}
	rows, err := r.q.Query(ctx, `SELECT `+chargeColumns+` FROM charges c`+cond.where()+` ORDER BY c.id`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list charges: %w", err)
	}
	return collectCharges(rows)
}
