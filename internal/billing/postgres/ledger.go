package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

type ledgerRepo struct{ q db.Querier }

const accountColumns = `a.id, a.holder_kind, a.holder_id, a.account_type, a.sub_type, a.label, a.created_at`

func scanAccount(row pgx.Row) (billing.GLAccount, error) {
	var a billing.GLAccount
	err := row.Scan(&a.ID, &a.HolderKind, &a.HolderID, &a.AccountType, &a.SubType, &a.Label, &a.CreatedAt)
	return a, err
}

func (r ledgerRepo) GetAccount(ctx context.Context, id int64) (billing.GLAccount, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts a WHERE a.id=$1`, id))
	if err != nil {
		return billing.GLAccount{}, notFound(err, "gl account", id)
	}
	return a, nil
}

// EnsureAccount returns the account for key, creating it on first use. The no-op
// update makes RETURNING yield the existing row on conflict.
func (r ledgerRepo) EnsureAccount(ctx context.Context, key billing.GLAccountKey) (billing.GLAccount, error) {
	if err := key.Validate(); err != nil {
		return billing.GLAccount{}, err
	}
	a, err := scanAccount(r.q.QueryRow(ctx, `
		INSERT INTO gl_accounts AS a (holder_kind, holder_id, account_type, sub_type, label)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT ON CONSTRAINT gl_accounts_key DO UPDATE SET label = EXCLUDED.label
		RETURNING `+accountColumns,
		key.HolderKind, key.HolderID, key.AccountType, key.SubType, key.Label))
	if err != nil {
		return billing.GLAccount{}, fmt.Errorf("postgres: ensure gl account %s/%d/%s: %w", key.HolderKind, key.HolderID, key.SubType, err)
	}
	return a, nil
}

func (r ledgerRepo) AppendTransactions(ctx context.Context, rows []billing.GLTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range rows {
		batch.Queue(`
			INSERT INTO gl_transactions (gl_account_id, direction, amount, description, event_ref)
			VALUES ($1,$2,$3,$4,$5)`,
			t.GLAccountID, t.Direction, billing.RoundMoney(t.Amount), t.Description, t.EventRef)
	}
	br := r.q.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: append journal row: %w", err)
		}
	}
	return br.Close()
}

func (r ledgerRepo) ListAccounts(ctx context.Context, f billing.AccountFilter) ([]billing.GLAccount, error) {
	var cond conditions
	accountConditions(&cond, f)
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts a`+cond.where()+` ORDER BY a.id`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list gl accounts: %w", err)
	}
	defer rows.Close()
	var out []billing.GLAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func accountConditions(cond *conditions, f billing.AccountFilter) {
	if f.AccountType != "" {
		cond.add("a.account_type = ?", f.AccountType)
	}
	if f.SubType != "" {
		cond.add("a.sub_type = ?", f.SubType)
	}
	if f.HolderKind != "" {
		cond.add("a.holder_kind = ?", f.HolderKind)
	}
	if f.HolderID != 0 {
		cond.add("a.holder_id = ?", f.HolderID)
	}
}

func (r ledgerRepo) ListTransactions(ctx context.Context, f billing.TransactionFilter) ([]billing.GLTransaction, error) {
	var cond conditions
	accountConditions(&cond, f.AccountFilter)
	if f.AccountID != 0 {
		cond.add("t.gl_account_id = ?", f.AccountID)
	}
	if f.Direction != "" {
		cond.add("t.direction = ?", f.Direction)
	}
	if f.EventRef != uuid.Nil {
		cond.add("t.event_ref = ?", f.EventRef)
	}
	rows, err := r.q.Query(ctx, `
		SELECT t.id, t.gl_account_id, t.direction, t.amount, t.description, t.event_ref, t.created_at
		FROM gl_transactions t
		JOIN gl_accounts a ON a.id = t.gl_account_id`+cond.where()+`
		ORDER BY t.id`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	defer rows.Close()
	var out []billing.GLTransaction
	for rows.Next() {
		var t billing.GLTransaction
		if err := rows.Scan(&t.ID, &t.GLAccountID, &t.Direction, &t.Amount, &t.Description, &t.EventRef, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r ledgerRepo) UnbalancedEvents(ctx context.Context) ([]billing.EventBalance, error) {
	rows, err := r.q.Query(ctx, `
		SELECT event_ref,
			COALESCE(SUM(amount) FILTER (WHERE direction='DEBIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction='CREDIT'), 0)
		FROM gl_transactions
		GROUP BY event_ref
		HAVING COALESCE(SUM(amount) FILTER (WHERE direction='DEBIT'), 0)
			<> COALESCE(SUM(amount) FILTER (WHERE direction='CREDIT'), 0)
		ORDER BY event_ref`)
	if err != nil {
		return nil, fmt.Errorf("postgres: unbalanced events: %w", err)
	}
	defer rows.Close()
	var out []billing.EventBalance
	for rows.Next() {
		var b billing.EventBalance
		if err := rows.Scan(&b.EventRef, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
