package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

type paymentRepo struct{ q db.Querier }

const paymentColumns = `p.id, p.invoice_id, p.amount, p.method, p.payment_date, p.account_id, p.external_ref, p.created_at`

func scanPayment(row pgx.Row) (billing.Payment, error) {
	var p billing.Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.PaymentDate, &p.AccountID, &p.ExternalRef, &p.CreatedAt)
	return p, err
}

// UpsertPayment keeps one row per invoice; a later settlement overwrites the earlier one.
func (r paymentRepo) UpsertPayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	if err := p.Validate(); err != nil {
		return billing.Payment{}, err
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO payments (invoice_id, amount, method, payment_date, account_id, external_ref)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT ON CONSTRAINT payments_invoice_key DO UPDATE SET
			amount=EXCLUDED.amount, method=EXCLUDED.method, payment_date=EXCLUDED.payment_date,
			account_id=EXCLUDED.account_id, external_ref=EXCLUDED.external_ref
		RETURNING id, created_at`,
		p.InvoiceID, billing.RoundMoney(p.Amount), p.Method, p.PaymentDate, p.AccountID, p.ExternalRef,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return billing.Payment{}, fmt.Errorf("postgres: upsert payment for invoice %d: %w", p.InvoiceID, err)
	}
	return p, nil
}

func (r paymentRepo) GetPaymentByInvoice(ctx context.Context, invoiceID int64) (billing.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.invoice_id=$1`, invoiceID))
	if err != nil {
		return billing.Payment{}, notFound(err, "payment for invoice", invoiceID)
	}
	return p, nil
}

func (r paymentRepo) List(ctx context.Context, f billing.PaymentFilter) ([]billing.Payment, error) {
	var cond conditions
	if f.PaidFrom != nil {
		cond.add("p.payment_date >= ?", *f.PaidFrom)
	}
	if f.PaidTo != nil {
		cond.add("p.payment_date <= ?", *f.PaidTo)
	}
	if f.InvoiceStatus != "" {
		cond.add("i.status = ?", f.InvoiceStatus)
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments p
		JOIN invoices i ON i.id = p.invoice_id`+cond.where()+`
		ORDER BY p.payment_date, p.id`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payments: %w", err)
	}
	defer rows.Close()
	var out []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
