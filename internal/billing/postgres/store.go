// Package postgres implements the billing store ports over pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

// Store is a billing.UnitOfWork backed by a pgx pool. Outside WithTx every call
// runs in its own implicit transaction.
type Store struct {
	pool *pgxpool.Pool
	q    db.Querier
	inTx bool
}

// New constructs a store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// WithTx implements billing.UnitOfWork. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx billing.Stores) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Store{pool: s.pool, q: tx, inTx: true})
	})
}

func (s *Store) Properties() billing.PropertyStore { return propertyRepo{q: s.q} }
func (s *Store) Policies() billing.PolicyStore     { return policyRepo{q: s.q} }
func (s *Store) Leases() billing.LeaseStore        { return leaseRepo{q: s.q} }
func (s *Store) Charges() billing.ChargeStore      { return chargeRepo{q: s.q} }
func (s *Store) Invoices() billing.InvoiceStore    { return invoiceRepo{q: s.q} }
func (s *Store) Payments() billing.PaymentStore    { return paymentRepo{q: s.q} }
func (s *Store) Ledger() billing.LedgerStore       { return ledgerRepo{q: s.q} }

var _ billing.UnitOfWork = (*Store)(nil)

// conditions accumulates positional WHERE clauses.
type conditions struct {
	parts []string
	args  []any
}

// add appends expr with its single placeholder "?" bound to arg.
func (c *conditions) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.parts = append(c.parts, strings.Replace(expr, "?", fmt.Sprintf("$%d", len(c.args)), 1))
}

// raw appends an expression without arguments.
func (c *conditions) raw(expr string) {
	c.parts = append(c.parts, expr)
}

func (c *conditions) where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func notFound(err error, kind string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, billing.ErrNotFound)
	}
	return fmt.Errorf("postgres: %s %d: %w", kind, id, err)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
