// Package billing holds the rent-billing entities, store ports and error kinds
// shared by the calendar, policy, charge, invoice, assessment, payment and ledger
// packages.
package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RentCycle enumerates lease billing cadences.
type RentCycle string

const (
	RentCycleWeekly    RentCycle = "WEEKLY"
	RentCycleMonthly   RentCycle = "MONTHLY"
	RentCycleQuarterly RentCycle = "QUARTERLY"
	RentCycleSixMonths RentCycle = "SIX_MONTHS"
	RentCycleYearly    RentCycle = "YEARLY"
)

// LeaseStatus enumerates lease lifecycle values.
type LeaseStatus string

const (
	LeaseStatusPending LeaseStatus = "PENDING"
	LeaseStatusActive  LeaseStatus = "ACTIVE"
	LeaseStatusClosed  LeaseStatus = "CLOSED"
)

// ChargeType distinguishes templates from billable rows.
type ChargeType string

const (
	ChargeTypeOneTime   ChargeType = "ONE_TIME"
	ChargeTypeRecurring ChargeType = "RECURRING"
)

// ChargeStatus is the settlement state of a one-time charge. Recurring templates
// carry ChargeStatusNone.
type ChargeStatus string

const (
	ChargeStatusNone        ChargeStatus = ""
	ChargeStatusUnpaid      ChargeStatus = "UNPAID"
	ChargeStatusNotVerified ChargeStatus = "NOT_VERIFIED"
	ChargeStatusVerified    ChargeStatus = "VERIFIED"
	ChargeStatusRejected    ChargeStatus = "REJECTED"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid      InvoiceStatus = "UNPAID"
	InvoiceStatusNotVerified InvoiceStatus = "NOT_VERIFIED"
	InvoiceStatusVerified    InvoiceStatus = "VERIFIED"
	InvoiceStatusRejected    InvoiceStatus = "REJECTED"
)

// Outstanding reports whether the invoice still rolls into arrears.
func (s InvoiceStatus) Outstanding() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusRejected
}

// FeeType selects how the base late-fee amount is interpreted.
type FeeType string

const (
	FeeTypeFlat       FeeType = "FLAT"
	FeeTypePercentage FeeType = "PERCENTAGE"
)

// EligibleCharges selects the base of a percentage late fee.
type EligibleCharges string

const (
	EligibleEveryCharge         EligibleCharges = "EVERY_CHARGE"
	EligibleOnlyRecurringRent   EligibleCharges = "ONLY_RECURRING_RENT"
	EligibleAllRecurringCharges EligibleCharges = "ALL_RECURRING_CHARGES"
)

// GracePeriodType selects how the due date is derived.
type GracePeriodType string

const (
	GracePeriodNone           GracePeriodType = "NONE"
	GracePeriodNumberOfDays   GracePeriodType = "NUMBER_OF_DAYS"
	GracePeriodTillDayOfMonth GracePeriodType = "TILL_DATE_OF_MONTH"
)

// PaymentMethod enumerates settlement channels.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "CARD"
)

// Property is the billing view of a managed property.
type Property struct {
	ID               int64
	Name             string
	Timezone         string
	DefaultRentCycle RentCycle
	PetsAllowed      bool
	SmokingAllowed   bool
}

// Location resolves the property zone, falling back to UTC.
func (p Property) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LateFeePolicy captures the per-property late-fee rules.
type LateFeePolicy struct {
	ID               int64
	PropertyID       int64
	StartDate        time.Time
	EndDate          time.Time
	FeeType          FeeType
	BaseAmount       decimal.Decimal
	EligibleCharges  EligibleCharges
	ChargeDaily      bool
	DailyCapPerMonth decimal.Decimal
	GracePeriodType  GracePeriodType
	GracePeriodValue int
	UpdatedAt        time.Time
}

// Validate enforces the policy row invariants.
func (p LateFeePolicy) Validate() error {
	if p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("%w: end_date before start_date", ErrPolicyInvariant)
	}
	switch p.FeeType {
	case FeeTypeFlat, FeeTypePercentage:
	default:
		return fmt.Errorf("%w: unknown fee_type %q", ErrPolicyInvariant, p.FeeType)
	}
	if p.BaseAmount.IsNegative() {
		return fmt.Errorf("%w: negative base_amount", ErrPolicyInvariant)
	}
	if p.ChargeDaily && !p.DailyCapPerMonth.IsPositive() {
		return fmt.Errorf("%w: charge_daily requires daily_cap_per_month > 0", ErrPolicyInvariant)
	}
	switch p.GracePeriodType {
	case GracePeriodNone:
	case GracePeriodNumberOfDays:
		if p.GracePeriodValue < 0 {
			return fmt.Errorf("%w: negative grace period", ErrPolicyInvariant)
		}
	case GracePeriodTillDayOfMonth:
		if p.GracePeriodValue < 1 || p.GracePeriodValue > 28 {
			return fmt.Errorf("%w: grace day of month %d outside 1..28", ErrPolicyInvariant, p.GracePeriodValue)
		}
	default:
		return fmt.Errorf("%w: unknown grace_period_type %q", ErrPolicyInvariant, p.GracePeriodType)
	}
	return nil
}

// Unit belongs to one property.
type Unit struct {
	ID         int64
	PropertyID int64
	Name       string
}

// Lease binds a tenant to a unit for a rent cycle.
type Lease struct {
	ID              int64
	UnitID          int64
	PrimaryTenantID int64
	RentCycle       RentCycle
	RentAmount      decimal.Decimal
	StartDate       time.Time
	EndDate         time.Time
	Status          LeaseStatus
}

// InEffect reports whether the lease is billable on the civil date day.
func (l Lease) InEffect(day time.Time) bool {
	if l.Status != LeaseStatusActive {
		return false
	}
	if day.Before(l.StartDate) {
		return false
	}
	return l.EndDate.IsZero() || !day.After(l.EndDate)
}

// LeaseSchedule is the scheduler's view of an active lease.
type LeaseSchedule struct {
	Lease           Lease
	PropertyID      int64
	Timezone        string
	LastIntervalEnd *time.Time
}

// Charge is either a recurring template or a billable one-time row.
type Charge struct {
	ID             int64
	Title          string
	Description    string
	Notes          string
	Amount         decimal.Decimal
	GLAccountID    *int64
	TenantID       int64
	PropertyID     int64
	UnitID         int64
	Type           ChargeType
	Status         ChargeStatus
	ParentChargeID *int64
	InvoiceID      *int64
	CreatedAt      time.Time
	// RetiredAt is set on deleted recurring templates; the row stays so that
	// materialised children keep their parent link.
	RetiredAt *time.Time
}

// Normalize applies the pre-save rule: recurring templates never carry a status
// or an invoice, one-time charges default to UNPAID. It reports whether a
// contradictory status had to be dropped.
func (c Charge) Normalize() (Charge, bool) {
	switch c.Type {
	case ChargeTypeRecurring:
		coerced := c.Status != ChargeStatusNone || c.InvoiceID != nil
		c.Status = ChargeStatusNone
		c.InvoiceID = nil
		return c, coerced
	default:
		if c.Status == ChargeStatusNone {
			c.Status = ChargeStatusUnpaid
		}
		return c, false
	}
}

// Invoice is one billing interval of a lease. Late-fee and payable figures are
// derived by the assessment package and never stored here.
type Invoice struct {
	ID            int64
	LeaseID       int64
	UnitID        int64
	PropertyID    int64
	IntervalStart time.Time
	IntervalEnd   time.Time
	DueDate       time.Time
	RentAmount    decimal.Decimal
	ArrearsAmount decimal.Decimal
	ArrearOf      *int64
	TotalPaid     decimal.Decimal
	PayedAt       *time.Time
	PayedLateFee  decimal.NullDecimal
	Status        InvoiceStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment records the settlement of exactly one invoice.
type Payment struct {
	ID          int64
	InvoiceID   int64
	Amount      decimal.Decimal
	Method      PaymentMethod
	PaymentDate time.Time
	AccountID   *int64
	ExternalRef string
	CreatedAt   time.Time
}

// Validate enforces BANK_TRANSFER iff account.
func (p Payment) Validate() error {
	switch p.Method {
	case PaymentMethodBankTransfer:
		if p.AccountID == nil {
			return fmt.Errorf("%w: bank transfer requires account", ErrInvalidPaymentMethod)
		}
	case PaymentMethodCard:
		if p.AccountID != nil {
			return fmt.Errorf("%w: card payment cannot reference an account", ErrInvalidPaymentMethod)
		}
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidPaymentMethod, p.Method)
	}
	return nil
}

// HolderKind tags the table a GL account holder id refers to.
type HolderKind string

const (
	HolderUnit      HolderKind = "UNIT"
	HolderProject   HolderKind = "PROJECT"
	HolderInventory HolderKind = "INVENTORY"
	HolderProperty  HolderKind = "PROPERTY"
)

// AccountType enumerates ledger categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountSubType partitions each account type.
type AccountSubType string

const (
	SubTypeCashAndBank        AccountSubType = "CASH_AND_BANK"
	SubTypeAccountsReceivable AccountSubType = "ACCOUNTS_RECEIVABLE"
	SubTypeSecurityDeposit    AccountSubType = "SECURITY_DEPOSIT"
	SubTypeAccountsPayable    AccountSubType = "ACCOUNTS_PAYABLE"
	SubTypeOwnerEquity        AccountSubType = "OWNER_EQUITY"
	SubTypeRentalIncome       AccountSubType = "RENTAL_INCOME"
	SubTypeOtherIncome        AccountSubType = "OTHER_INCOME"
	SubTypeOperatingExpense   AccountSubType = "OPERATING_EXPENSE"
	SubTypeMaintenance        AccountSubType = "MAINTENANCE"
)

var subTypeOwner = map[AccountSubType]AccountType{
	SubTypeCashAndBank:        AccountTypeAsset,
	SubTypeAccountsReceivable: AccountTypeAsset,
	SubTypeSecurityDeposit:    AccountTypeLiability,
	SubTypeAccountsPayable:    AccountTypeLiability,
	SubTypeOwnerEquity:        AccountTypeEquity,
	SubTypeRentalIncome:       AccountTypeIncome,
	SubTypeOtherIncome:        AccountTypeIncome,
	SubTypeOperatingExpense:   AccountTypeExpense,
	SubTypeMaintenance:        AccountTypeExpense,
}

// Direction is the side of a journal row.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Ledger labels used by the reconciler.
const (
	LabelRent    = "RENT"
	LabelCharge  = "CHARGE"
	LabelLateFee = "LATE_FEE"
	LabelArrears = "ARREARS"
)

// GLAccountKey is the five-field business key of an account. An empty label is
// stored as the empty string so the key stays unique.
type GLAccountKey struct {
	HolderKind  HolderKind
	HolderID    int64
	AccountType AccountType
	SubType     AccountSubType
	Label       string
}

// Validate checks the holder tag and that the sub-type belongs to the type.
func (k GLAccountKey) Validate() error {
	switch k.HolderKind {
	case HolderUnit, HolderProject, HolderInventory, HolderProperty:
	default:
		return fmt.Errorf("%w: unknown holder kind %q", ErrValidation, k.HolderKind)
	}
	if k.HolderID <= 0 {
		return fmt.Errorf("%w: holder id required", ErrValidation)
	}
	owner, ok := subTypeOwner[k.SubType]
	if !ok || owner != k.AccountType {
		return fmt.Errorf("%w: sub_type %q does not belong to %q", ErrValidation, k.SubType, k.AccountType)
	}
	return nil
}

// GLAccount is a ledger account owned by a polymorphic holder.
type GLAccount struct {
	ID int64
	GLAccountKey
	CreatedAt time.Time
}

// GLTransaction is one append-only journal row.
type GLTransaction struct {
	ID          int64
	GLAccountID int64
	Direction   Direction
	Amount      decimal.Decimal
	Description string
	EventRef    uuid.UUID
	CreatedAt   time.Time
}

// EventBalance summarises one ledger event.
type EventBalance struct {
	EventRef uuid.UUID
	Debit    decimal.Decimal
	Credit   decimal.Decimal
}

// RoundMoney rounds half away from zero to two places. Apply only when persisting.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
