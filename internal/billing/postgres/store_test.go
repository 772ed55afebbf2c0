package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

func TestConditionsNumbersPlaceholders(t *testing.T) {
	var c conditions
	require.Empty(t, c.where())

	c.add("i.property_id = ?", int64(3))
	c.add("i.status = ?", "UNPAID")
	c.add("i.created_at < ?", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	require.Equal(t, " WHERE i.property_id = $1 AND i.status = $2 AND i.created_at < $3", c.where())
	require.Len(t, c.args, 3)
	require.Equal(t, "UNPAID", c.args[1])
}

func TestNotFoundMapping(t *testing.T) {
	err := notFound(pgx.ErrNoRows, "invoice", 9)
	require.ErrorIs(t, err, billing.ErrNotFound)
	require.EqualError(t, err, "invoice 9: "+billing.ErrNotFound.Error())

	other := errors.New("conn reset")
	err = notFound(other, "lease", 2)
	require.ErrorIs(t, err, other)
	require.NotErrorIs(t, err, billing.ErrNotFound)
}

func TestNullableTime(t *testing.T) {
	require.Nil(t, nullableTime(time.Time{}))
	at := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, &at, nullableTime(at))
}

func TestInsertInvoiceErrorMapsDuplicateInterval(t *testing.T) {
	inv := billing.Invoice{LeaseID: 4, IntervalStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "invoices_lease_interval"}
	err := insertInvoiceError(dup, inv)
	require.ErrorIs(t, err, billing.ErrIntervalOverlap)
	require.Contains(t, err.Error(), "2024-02-01")

	other := &pgconn.PgError{Code: "23505", ConstraintName: "payments_invoice_key"}
	err = insertInvoiceError(other, inv)
	require.NotErrorIs(t, err, billing.ErrIntervalOverlap)
	require.ErrorIs(t, err, other)
}
