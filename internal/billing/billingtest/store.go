// Package billingtest provides an in-memory, transactional implementation of the
// billing store ports for tests.
package billingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

type state struct {
	seq        int64
	properties map[int64]billing.Property
	units      map[int64]billing.Unit
	policies   map[int64]billing.LateFeePolicy
	leases     map[int64]billing.Lease
	charges    map[int64]billing.Charge
	invoices   map[int64]billing.Invoice
	payments   map[int64]billing.Payment
	accounts   map[int64]billing.GLAccount
	journal    []billing.GLTransaction
}

func (st *state) clone() *state {
	return &state{
		seq:        st.seq,
		properties: cloneMap(st.properties),
		units:      cloneMap(st.units),
		policies:   cloneMap(st.policies),
		leases:     cloneMap(st.leases),
		charges:    cloneMap(st.charges),
		invoices:   cloneMap(st.invoices),
		payments:   cloneMap(st.payments),
		accounts:   cloneMap(st.accounts),
		journal:    append([]billing.GLTransaction(nil), st.journal...),
	}
}

func cloneMap[V any](in map[int64]V) map[int64]V {
	out := make(map[int64]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store is a billing.UnitOfWork kept in memory. Transactions are serialised and
// rolled back by restoring a snapshot when fn fails.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state

	failures map[string]error
	// Now stamps rows that arrive without a timestamp.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			properties: map[int64]billing.Property{},
			units:      map[int64]billing.Unit{},
			policies:   map[int64]billing.LateFeePolicy{},
			leases:     map[int64]billing.Lease{},
			charges:    map[int64]billing.Charge{},
			invoices:   map[int64]billing.Invoice{},
			payments:   map[int64]billing.Payment{},
			accounts:   map[int64]billing.GLAccount{},
		},
		failures: map[string]error{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the named store operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) lock(op string) (*state, func(), error) {
	s.mu.Lock()
	if err := s.failures[op]; err != nil {
		s.mu.Unlock()
		return nil, func() {}, err
	}
	return s.st, s.mu.Unlock, nil
}

func (st *state) next() int64 {
	st.seq++
	return st.seq
}

// WithTx implements billing.UnitOfWork.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx billing.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	err := ctx.Err()
	if err == nil {
		err = fn(ctx, s)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Properties() billing.PropertyStore { return propertyStore{s} }
func (s *Store) Policies() billing.PolicyStore     { return policyStore{s} }
func (s *Store) Leases() billing.LeaseStore        { return leaseStore{s} }
func (s *Store) Charges() billing.ChargeStore      { return chargeStore{s} }
func (s *Store) Invoices() billing.InvoiceStore    { return invoiceStore{s} }
func (s *Store) Payments() billing.PaymentStore    { return paymentStore{s} }
func (s *Store) Ledger() billing.LedgerStore       { return ledgerStore{s} }

// AddProperty seeds a property.
func (s *Store) AddProperty(p billing.Property) billing.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.next()
	}
	s.st.properties[p.ID] = p
	return p
}

// AddUnit seeds a unit.
func (s *Store) AddUnit(u billing.Unit) billing.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.st.next()
	}
	s.st.units[u.ID] = u
	return u
}

// AddLease seeds a lease.
func (s *Store) AddLease(l billing.Lease) billing.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.st.next()
	}
	s.st.leases[l.ID] = l
	return l
}

// SetLeaseStatus moves a lease through its lifecycle.
func (s *Store) SetLeaseStatus(id int64, status billing.LeaseStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.st.leases[id]
	l.Status = status
	s.st.leases[id] = l
}

// SetPolicy seeds or replaces the policy row of a property without validation.
func (s *Store) SetPolicy(p billing.LateFeePolicy) billing.LateFeePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.next()
	}
	s.st.policies[p.PropertyID] = p
	return p
}

// SetInvoiceStatus forces an invoice status, e.g. an operator rejection.
func (s *Store) SetInvoiceStatus(id int64, status billing.InvoiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.st.invoices[id]
	inv.Status = status
	s.st.invoices[id] = inv
}

// Journal returns a copy of every ledger row.
func (s *Store) Journal() []billing.GLTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.GLTransaction(nil), s.st.journal...)
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, billing.ErrNotFound)
}

type propertyStore struct{ s *Store }

func (p propertyStore) GetProperty(_ context.Context, id int64) (billing.Property, error) {
	st, unlock, err := p.s.lock("GetProperty")
	defer unlock()
	if err != nil {
		return billing.Property{}, err
	}
	prop, ok := st.properties[id]
	if !ok {
		return billing.Property{}, notFound("property", id)
	}
	return prop, nil
}

func (p propertyStore) GetUnit(_ context.Context, id int64) (billing.Unit, error) {
	st, unlock, err := p.s.lock("GetUnit")
	defer unlock()
	if err != nil {
		return billing.Unit{}, err
	}
	u, ok := st.units[id]
	if !ok {
		return billing.Unit{}, notFound("unit", id)
	}
	return u, nil
}

type policyStore struct{ s *Store }

func (p policyStore) GetLateFeePolicy(_ context.Context, propertyID int64) (billing.LateFeePolicy, error) {
	st, unlock, err := p.s.lock("GetLateFeePolicy")
	defer unlock()
	if err != nil {
		return billing.LateFeePolicy{}, err
	}
	pol, ok := st.policies[propertyID]
	if !ok {
		return billing.LateFeePolicy{}, notFound("late fee policy for property", propertyID)
	}
	return pol, nil
}

func (p policyStore) UpdateLateFeePolicy(_ context.Context, pol billing.LateFeePolicy) (billing.LateFeePolicy, error) {
	st, unlock, err := p.s.lock("UpdateLateFeePolicy")
	defer unlock()
	if err != nil {
		return billing.LateFeePolicy{}, err
	}
	if _, ok := st.policies[pol.PropertyID]; !ok {
		return billing.LateFeePolicy{}, notFound("late fee policy for property", pol.PropertyID)
	}
	st.policies[pol.PropertyID] = pol
	return pol, nil
}

type leaseStore struct{ s *Store }

func (l leaseStore) GetLease(_ context.Context, id int64) (billing.Lease, error) {
	st, unlock, err := l.s.lock("GetLease")
	defer unlock()
	if err != nil {
		return billing.Lease{}, err
	}
	lease, ok := st.leases[id]
	if !ok {
		return billing.Lease{}, notFound("lease", id)
	}
	return lease, nil
}

func (l leaseStore) LockActiveLease(_ context.Context, unitID int64) (billing.Lease, error) {
	st, unlock, err := l.s.lock("LockActiveLease")
	defer unlock()
	if err != nil {
		return billing.Lease{}, err
	}
	for _, id := range sortedKeys(st.leases) {
		lease := st.leases[id]
		if lease.UnitID == unitID && lease.Status == billing.LeaseStatusActive {
			return lease, nil
		}
	}
	return billing.Lease{}, billing.ErrNoActiveLease
}

func (l leaseStore) ListActiveSchedules(_ context.Context) ([]billing.LeaseSchedule, error) {
	st, unlock, err := l.s.lock("ListActiveSchedules")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.LeaseSchedule
	for _, id := range sortedKeys(st.leases) {
		lease := st.leases[id]
		if lease.Status != billing.LeaseStatusActive {
			continue
		}
		unit := st.units[lease.UnitID]
		sched := billing.LeaseSchedule{
			Lease:      lease,
			PropertyID: unit.PropertyID,
			Timezone:   st.properties[unit.PropertyID].Timezone,
		}
		for _, inv := range st.invoices {
			if inv.LeaseID != lease.ID {
				continue
			}
			if sched.LastIntervalEnd == nil || inv.IntervalEnd.After(*sched.LastIntervalEnd) {
				end := inv.IntervalEnd
				sched.LastIntervalEnd = &end
			}
		}
		out = append(out, sched)
	}
	return out, nil
}

type chargeStore struct{ s *Store }

func (c chargeStore) InsertCharge(_ context.Context, charge billing.Charge) (billing.Charge, error) {
	st, unlock, err := c.s.lock("InsertCharge")
	defer unlock()
	if err != nil {
		return billing.Charge{}, err
	}
	charge, _ = charge.Normalize()
	charge.ID = st.next()
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = c.s.Now()
	}
	charge.Amount = billing.RoundMoney(charge.Amount)
	st.charges[charge.ID] = charge
	return charge, nil
}

func (c chargeStore) GetCharge(_ context.Context, id int64) (billing.Charge, error) {
	st, unlock, err := c.s.lock("GetCharge")
	defer unlock()
	if err != nil {
		return billing.Charge{}, err
	}
	charge, ok := st.charges[id]
	if !ok || charge.RetiredAt != nil {
		return billing.Charge{}, notFound("charge", id)
	}
	return charge, nil
}

func (c chargeStore) DeleteCharge(_ context.Context, id int64) error {
	st, unlock, err := c.s.lock("DeleteCharge")
	defer unlock()
	if err != nil {
		return err
	}
	charge, ok := st.charges[id]
	if !ok || charge.RetiredAt != nil {
		return notFound("charge", id)
	}
	if charge.Type == billing.ChargeTypeRecurring {
		now := c.s.Now()
		charge.RetiredAt = &now
		st.charges[id] = charge
		return nil
	}
	delete(st.charges, id)
	return nil
}

func (c chargeStore) ListRecurring(_ context.Context, scope billing.ChargeScope) ([]billing.Charge, error) {
	st, unlock, err := c.s.lock("ListRecurring")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.Charge
	for _, id := range sortedKeys(st.charges) {
		ch := st.charges[id]
		if ch.Type != billing.ChargeTypeRecurring || ch.RetiredAt != nil {
			continue
		}
		if scope.PropertyID != 0 && ch.PropertyID != scope.PropertyID {
			continue
		}
		if scope.UnitID != 0 && ch.UnitID != scope.UnitID {
			continue
		}
		if scope.TenantID != 0 && ch.TenantID != scope.TenantID {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

func (c chargeStore) ListUnbilled(_ context.Context, unitID int64, from, to time.Time) ([]billing.Charge, error) {
	st, unlock, err := c.s.lock("ListUnbilled")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.Charge
	for _, id := range sortedKeys(st.charges) {
		ch := st.charges[id]
		if ch.UnitID != unitID || ch.Type != billing.ChargeTypeOneTime || ch.Status != billing.ChargeStatusUnpaid || ch.InvoiceID != nil {
			continue
		}
		if ch.CreatedAt.Before(from) || !ch.CreatedAt.Before(to) {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

func (c chargeStore) BindToInvoice(_ context.Context, invoiceID int64, chargeIDs []int64) (int, error) {
	st, unlock, err := c.s.lock("BindToInvoice")
	defer unlock()
	if err != nil {
		return 0, err
	}
	bound := 0
	for _, id := range chargeIDs {
		ch, ok := st.charges[id]
		if !ok || ch.InvoiceID != nil {
			continue
		}
		inv := invoiceID
		ch.InvoiceID = &inv
		st.charges[id] = ch
		bound++
	}
	return bound, nil
}

func (c chargeStore) ListByInvoices(_ context.Context, invoiceIDs []int64) (map[int64][]billing.Charge, error) {
	st, unlock, err := c.s.lock("ListByInvoices")
	defer unlock()
	if err != nil {
		return nil, err
	}
	wanted := map[int64]bool{}
	for _, id := range invoiceIDs {
		wanted[id] = true
	}
	out := map[int64][]billing.Charge{}
	for _, id := range sortedKeys(st.charges) {
		ch := st.charges[id]
		if ch.InvoiceID != nil && wanted[*ch.InvoiceID] {
			out[*ch.InvoiceID] = append(out[*ch.InvoiceID], ch)
		}
	}
	return out, nil
}

func (c chargeStore) SetStatusByInvoice(_ context.Context, invoiceID int64, status billing.ChargeStatus) error {
	st, unlock, err := c.s.lock("SetStatusByInvoice")
	defer unlock()
	if err != nil {
		return err
	}
	for id, ch := range st.charges {
		if ch.InvoiceID != nil && *ch.InvoiceID == invoiceID {
			ch.Status = status
			st.charges[id] = ch
		}
	}
	return nil
}

func (c chargeStore) List(_ context.Context, f billing.ChargeFilter) ([]billing.Charge, error) {
	st, unlock, err := c.s.lock("ListCharges")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.Charge
	for _, id := range sortedKeys(st.charges) {
		ch := st.charges[id]
		switch {
		case ch.RetiredAt != nil,
			f.PropertyID != 0 && ch.PropertyID != f.PropertyID,
			f.UnitID != 0 && ch.UnitID != f.UnitID,
			f.InvoiceID != 0 && (ch.InvoiceID == nil || *ch.InvoiceID != f.InvoiceID),
			f.Type != "" && ch.Type != f.Type,
			f.Status != "" && ch.Status != f.Status,
			f.CreatedFrom != nil && ch.CreatedAt.Before(*f.CreatedFrom),
			f.CreatedTo != nil && !ch.CreatedAt.Before(*f.CreatedTo):
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

type invoiceStore struct{ s *Store }

func (i invoiceStore) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	st, unlock, err := i.s.lock("InsertInvoice")
	defer unlock()
	if err != nil {
		return billing.Invoice{}, err
	}
	for _, existing := range st.invoices {
		if existing.LeaseID == inv.LeaseID && existing.IntervalStart.Equal(inv.IntervalStart) {
			return billing.Invoice{}, fmt.Errorf("lease %d interval %s: %w", inv.LeaseID, inv.IntervalStart.Format(time.DateOnly), billing.ErrIntervalOverlap)
		}
	}
	inv.ID = st.next()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = i.s.Now()
	}
	inv.UpdatedAt = inv.CreatedAt
	st.invoices[inv.ID] = inv
	return inv, nil
}

func (i invoiceStore) GetInvoice(_ context.Context, id int64) (billing.Invoice, error) {
	st, unlock, err := i.s.lock("GetInvoice")
	defer unlock()
	if err != nil {
		return billing.Invoice{}, err
	}
	inv, ok := st.invoices[id]
	if !ok {
		return billing.Invoice{}, notFound("invoice", id)
	}
	return inv, nil
}

func (i invoiceStore) LockInvoice(ctx context.Context, id int64) (billing.Invoice, error) {
	return i.GetInvoice(ctx, id)
}

func (i invoiceStore) ListForLease(_ context.Context, leaseID int64) ([]billing.Invoice, error) {
	st, unlock, err := i.s.lock("ListForLease")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.Invoice
	for _, inv := range st.invoices {
		if inv.LeaseID == leaseID {
			out = append(out, inv)
		}
	}
	sortInvoices(out)
	return out, nil
}

func (i invoiceStore) RollIntoArrears(_ context.Context, successorID int64, predecessorIDs []int64) error {
	st, unlock, err := i.s.lock("RollIntoArrears")
	defer unlock()
	if err != nil {
		return err
	}
	for _, id := range predecessorIDs {
		inv, ok := st.invoices[id]
		if !ok {
			return notFound("invoice", id)
		}
		succ := successorID
		inv.ArrearOf = &succ
		inv.ArrearsAmount = decimal.Zero
		st.invoices[id] = inv
	}
	return nil
}

func (i invoiceStore) UpdateInvoice(_ context.Context, inv billing.Invoice) error {
	st, unlock, err := i.s.lock("UpdateInvoice")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.invoices[inv.ID]; !ok {
		return notFound("invoice", inv.ID)
	}
	st.invoices[inv.ID] = inv
	return nil
}

func (i invoiceStore) List(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	st, unlock, err := i.s.lock("ListInvoices")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.Invoice
	for _, inv := range st.invoices {
		switch {
		case f.PropertyID != 0 && inv.PropertyID != f.PropertyID,
			f.UnitID != 0 && inv.UnitID != f.UnitID,
			f.LeaseID != 0 && inv.LeaseID != f.LeaseID,
			f.DueDate != nil && !inv.DueDate.Equal(*f.DueDate),
			f.Status != "" && inv.Status != f.Status,
			f.ArrearOf != 0 && (inv.ArrearOf == nil || *inv.ArrearOf != f.ArrearOf),
			f.CreatedFrom != nil && inv.CreatedAt.Before(*f.CreatedFrom),
			f.CreatedTo != nil && !inv.CreatedAt.Before(*f.CreatedTo):
			continue
		}
		out = append(out, inv)
	}
	sortInvoices(out)
	return out, nil
}

type paymentStore struct{ s *Store }

func (p paymentStore) UpsertPayment(_ context.Context, pay billing.Payment) (billing.Payment, error) {
	st, unlock, err := p.s.lock("UpsertPayment")
	defer unlock()
	if err != nil {
		return billing.Payment{}, err
	}
	if existing, ok := st.payments[pay.InvoiceID]; ok {
		pay.ID = existing.ID
		pay.CreatedAt = existing.CreatedAt
	} else {
		pay.ID = st.next()
		if pay.CreatedAt.IsZero() {
			pay.CreatedAt = p.s.Now()
		}
	}
	st.payments[pay.InvoiceID] = pay
	return pay, nil
}

func (p paymentStore) GetPaymentByInvoice(_ context.Context, invoiceID int64) (billing.Payment, error) {
	st, unlock, err := p.s.lock("GetPaymentByInvoice")
	defer unlock()
	if err != nil {
		return billing.Payment{}, err
	}
	pay, ok := st.payments[invoiceID]
	if !ok {
		return billing.Payment{}, notFound("payment for invoice", invoiceID)
	}
	return pay, nil
}

func (p paymentStore) List(_ context.Context, f billing.PaymentFilter) ([]billing.Payment, error) {
	st, unlock, err := p.s.lock("ListPayments")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.Payment
	for _, pay := range st.payments {
		switch {
		case f.PaidFrom != nil && pay.PaymentDate.Before(*f.PaidFrom),
			f.PaidTo != nil && pay.PaymentDate.After(*f.PaidTo),
			f.InvoiceStatus != "" && st.invoices[pay.InvoiceID].Status != f.InvoiceStatus:
			continue
		}
		out = append(out, pay)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

type ledgerStore struct{ s *Store }

func (l ledgerStore) GetAccount(_ context.Context, id int64) (billing.GLAccount, error) {
	st, unlock, err := l.s.lock("GetAccount")
	defer unlock()
	if err != nil {
		return billing.GLAccount{}, err
	}
	acct, ok := st.accounts[id]
	if !ok {
		return billing.GLAccount{}, notFound("gl account", id)
	}
	return acct, nil
}

// AddAccount seeds an account, e.g. one referenced by a charge.
func (s *Store) AddAccount(key billing.GLAccountKey) billing.GLAccount {
	acct, _ := ledgerStore{s}.EnsureAccount(context.Background(), key)
	return acct
}

func (l ledgerStore) EnsureAccount(_ context.Context, key billing.GLAccountKey) (billing.GLAccount, error) {
	st, unlock, err := l.s.lock("EnsureAccount")
	defer unlock()
	if err != nil {
		return billing.GLAccount{}, err
	}
	for _, acct := range st.accounts {
		if acct.GLAccountKey == key {
			return acct, nil
		}
	}
	acct := billing.GLAccount{ID: st.next(), GLAccountKey: key, CreatedAt: l.s.Now()}
	st.accounts[acct.ID] = acct
	return acct, nil
}

func (l ledgerStore) AppendTransactions(_ context.Context, rows []billing.GLTransaction) error {
	st, unlock, err := l.s.lock("AppendTransactions")
	defer unlock()
	if err != nil {
		return err
	}
	for _, row := range rows {
		row.ID = st.next()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = l.s.Now()
		}
		st.journal = append(st.journal, row)
	}
	return nil
}

func matchAccount(acct billing.GLAccount, f billing.AccountFilter) bool {
	switch {
	case f.AccountType != "" && acct.AccountType != f.AccountType,
		f.SubType != "" && acct.SubType != f.SubType,
		f.HolderKind != "" && acct.HolderKind != f.HolderKind,
		f.HolderID != 0 && acct.HolderID != f.HolderID:
		return false
	}
	return true
}

func (l ledgerStore) ListAccounts(_ context.Context, f billing.AccountFilter) ([]billing.GLAccount, error) {
	st, unlock, err := l.s.lock("ListAccounts")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.GLAccount
	for _, id := range sortedKeys(st.accounts) {
		if acct := st.accounts[id]; matchAccount(acct, f) {
			out = append(out, acct)
		}
	}
	return out, nil
}

func (l ledgerStore) ListTransactions(_ context.Context, f billing.TransactionFilter) ([]billing.GLTransaction, error) {
	st, unlock, err := l.s.lock("ListTransactions")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []billing.GLTransaction
	for _, row := range st.journal {
		switch {
		case f.AccountID != 0 && row.GLAccountID != f.AccountID,
			f.Direction != "" && row.Direction != f.Direction,
			f.EventRef != uuid.Nil && row.EventRef != f.EventRef,
			!matchAccount(st.accounts[row.GLAccountID], f.AccountFilter):
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (l ledgerStore) UnbalancedEvents(_ context.Context) ([]billing.EventBalance, error) {
	st, unlock, err := l.s.lock("UnbalancedEvents")
	defer unlock()
	if err != nil {
		return nil, err
	}
	totals := map[uuid.UUID]*billing.EventBalance{}
	var order []uuid.UUID
	for _, row := range st.journal {
		bal, ok := totals[row.EventRef]
		if !ok {
			bal = &billing.EventBalance{EventRef: row.EventRef, Debit: decimal.Zero, Credit: decimal.Zero}
			totals[row.EventRef] = bal
			order = append(order, row.EventRef)
		}
		if row.Direction == billing.DirectionDebit {
			bal.Debit = bal.Debit.Add(row.Amount)
		} else {
			bal.Credit = bal.Credit.Add(row.Amount)
		}
	}
	var out []billing.EventBalance
	for _, ref := range order {
		if bal := totals[ref]; !bal.Debit.Equal(bal.Credit) {
			out = append(out, *bal)
		}
	}
	return out, nil
}

// InjectJournalRow appends a raw row bypassing balance checks; used to exercise
// integrity reporting.
func (s *Store) InjectJournalRow(row billing.GLTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.ID = s.st.next()
	s.st.journal = append(s.st.journal, row)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}

func sortInvoices(in []billing.Invoice) {
	sort.Slice(in, func(a, b int) bool {
		if !in[a].CreatedAt.Equal(in[b].CreatedAt) {
			return in[a].CreatedAt.Before(in[b].CreatedAt)
		}
		return in[a].ID < in[b].ID
	})
}

var _ billing.UnitOfWork = (*Store)(nil)
