package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PropertyStore reads the property and unit collaborators.
type PropertyStore interface {
	GetProperty(ctx context.Context, id int64) (Property, error)
	GetUnit(ctx context.Context, id int64) (Unit, error)
}

// PolicyStore persists late-fee policies. GetLateFeePolicy returns ErrNotFound
// when the property has no row.
type PolicyStore interface {
	GetLateFeePolicy(ctx context.Context, propertyID int64) (LateFeePolicy, error)
	UpdateLateFeePolicy(ctx context.Context, policy LateFeePolicy) (LateFeePolicy, error)
}

// LeaseStore reads leases. LockActiveLease holds a row lock until the surrounding
// transaction ends and returns ErrNoActiveLease when none is ACTIVE.
type LeaseStore interface {
	GetLease(ctx context.Context, id int64) (Lease, error)
	LockActiveLease(ctx context.Context, unitID int64) (Lease, error)
	ListActiveSchedules(ctx context.Context) ([]LeaseSchedule, error)
}

// ChargeScope narrows recurring template lookups. Zero fields are ignored.
type ChargeScope struct {
	PropertyID int64
	UnitID     int64
	TenantID   int64
}

// ChargeFilter narrows charge queries.
type ChargeFilter struct {
	PropertyID  int64
	UnitID      int64
	InvoiceID   int64
	Type        ChargeType
	Status      ChargeStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ChargeStore persists charges.
type ChargeStore interface {
	InsertCharge(ctx context.Context, charge Charge) (Charge, error)
	GetCharge(ctx context.Context, id int64) (Charge, error)
	DeleteCharge(ctx context.Context, id int64) error
	ListRecurring(ctx context.Context, scope ChargeScope) ([]Charge, error)
	// ListUnbilled returns UNPAID one-time charges of the unit with no invoice created in [from, to).
	ListUnbilled(ctx context.Context, unitID int64, from, to time.Time) ([]Charge, error)
	// BindToInvoice attaches unbound charges and reports how many rows moved.
	BindToInvoice(ctx context.Context, invoiceID int64, chargeIDs []int64) (int, error)
	ListByInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]Charge, error)
	SetStatusByInvoice(ctx context.Context, invoiceID int64, status ChargeStatus) error
	List(ctx context.Context, filter ChargeFilter) ([]Charge, error)
}

// InvoiceFilter narrows invoice queries.
type InvoiceFilter struct {
	PropertyID  int64
	UnitID      int64
	LeaseID     int64
	DueDate     *time.Time
	Status      InvoiceStatus
	ArrearOf    int64
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	// LockInvoice returns the row under a lock held until the transaction ends.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	// ListForLease returns invoices ordered by created_at then id.
	ListForLease(ctx context.Context, leaseID int64) ([]Invoice, error)
	// RollIntoArrears points predecessors at successorID and zeroes their arrears.
	RollIntoArrears(ctx context.Context, successorID int64, predecessorIDs []int64) error
	UpdateInvoice(ctx context.Context, invoice Invoice) error
	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
}

// PaymentFilter narrows payment queries.
type PaymentFilter struct {
	PaidFrom      *time.Time
	PaidTo        *time.Time
	InvoiceStatus InvoiceStatus
}

// PaymentStore persists payments; one row per invoice.
type PaymentStore interface {
	UpsertPayment(ctx context.Context, payment Payment) (Payment, error)
	GetPaymentByInvoice(ctx context.Context, invoiceID int64) (Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

// AccountFilter narrows ledger account queries.
type AccountFilter struct {
	AccountType AccountType
	SubType     AccountSubType
	HolderKind  HolderKind
	HolderID    int64
}

// TransactionFilter narrows journal queries.
type TransactionFilter struct {
	AccountFilter
	AccountID int64
	Direction Direction
	EventRef  uuid.UUID
}

// LedgerStore persists accounts and the append-only journal.
type LedgerStore interface {
	GetAccount(ctx context.Context, id int64) (GLAccount, error)
	EnsureAccount(ctx context.Context, key GLAccountKey) (GLAccount, error)
	AppendTransactions(ctx context.Context, rows []GLTransaction) error
	ListAccounts(ctx context.Context, filter AccountFilter) ([]GLAccount, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]GLTransaction, error)
	UnbalancedEvents(ctx context.Context) ([]EventBalance, error)
}

// Stores groups every store port.
type Stores interface {
	Properties() PropertyStore
	Policies() PolicyStore
	Leases() LeaseStore
	Charges() ChargeStore
	Invoices() InvoiceStore
	Payments() PaymentStore
	Ledger() LedgerStore
}

// UnitOfWork runs fn against transaction-scoped stores; the transaction commits
// only when fn returns nil.
type UnitOfWork interface {
	Stores
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}
