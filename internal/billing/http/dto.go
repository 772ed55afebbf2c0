package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/assessment"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func money(d decimal.Decimal) string {
	return billing.RoundMoney(d).StringFixed(2)
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

// ChargeDTO is the wire form of a charge.
type ChargeDTO struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	Amount         string  `json:"amount"`
	GLAccountID    *int64  `json:"gl_account_id,omitempty"`
	TenantID       int64   `json:"tenant_id"`
	PropertyID     int64   `json:"property_id"`
	UnitID         int64   `json:"unit_id"`
	Type           string  `json:"type"`
	Status         *string `json:"status"`
	ParentChargeID *int64  `json:"parent_charge_id,omitempty"`
	InvoiceID      *int64  `json:"invoice_id,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func chargeDTO(c billing.Charge) ChargeDTO {
	out := ChargeDTO{
		ID:             c.ID,
		Title:          c.Title,
		Description:    c.Description,
		Notes:          c.Notes,
		Amount:         money(c.Amount),
		GLAccountID:    c.GLAccountID,
		TenantID:       c.TenantID,
		PropertyID:     c.PropertyID,
		UnitID:         c.UnitID,
		Type:           string(c.Type),
		ParentChargeID: c.ParentChargeID,
		InvoiceID:      c.InvoiceID,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.Status != billing.ChargeStatusNone {
		s := string(c.Status)
		out.Status = &s
	}
	return out
}

func chargeDTOs(in []billing.Charge) []ChargeDTO {
	out := make([]ChargeDTO, 0, len(in))
	for _, c := range in {
		out = append(out, chargeDTO(c))
	}
	return out
}

// InvoiceDTO is the wire form of an assessed invoice.
type InvoiceDTO struct {
	ID                     int64       `json:"id"`
	LeaseID                int64       `json:"lease_id"`
	UnitID                 int64       `json:"unit_id"`
	PropertyID             int64       `json:"property_id"`
	IntervalStart          string      `json:"interval_start"`
	IntervalEnd            string      `json:"interval_end"`
	DueDate                string      `json:"due_date"`
	RentAmount             string      `json:"rent_amount"`
	ArrearsAmount          string      `json:"arrears_amount"`
	ArrearOf               *int64      `json:"arrear_of"`
	Status                 string      `json:"status"`
	TotalPaid              string      `json:"total_paid"`
	PayedAt                *string     `json:"payed_at"`
	PayedLateFee           *string     `json:"payed_late_fee"`
	ChargesAmount          string      `json:"charges_amount"`
	RecurringAmount        string      `json:"recurring_amount"`
	ChargesAndRent         string      `json:"charges_and_rent"`
	RecurringChargesAmount string      `json:"recurring_charges_amount"`
	LateFee                string      `json:"late_fee"`
	NumberOfDaysLate       int         `json:"number_of_days_late"`
	DailyLateFee           string      `json:"daily_late_fee"`
	PayableLateFee         string      `json:"payable_late_fee"`
	PayableAmount          string      `json:"payable_amount"`
	IsLateFeeApplicable    bool        `json:"is_late_fee_applicable"`
	Charges                []ChargeDTO `json:"charges"`
	CreatedAt              string      `json:"created_at"`
}

func invoiceDTO(a assessment.Assessed) InvoiceDTO {
	out := InvoiceDTO{
		ID:                     a.ID,
		LeaseID:                a.LeaseID,
		UnitID:                 a.UnitID,
		PropertyID:             a.PropertyID,
		IntervalStart:          formatDate(a.IntervalStart),
		IntervalEnd:            formatDate(a.IntervalEnd),
		DueDate:                formatDate(a.DueDate),
		RentAmount:             money(a.RentAmount),
		ArrearsAmount:          money(a.ArrearsAmount),
		ArrearOf:               a.ArrearOf,
		Status:                 string(a.Status),
		TotalPaid:              money(a.TotalPaid),
		PayedAt:                formatDatePtr(a.PayedAt),
		ChargesAmount:          money(a.ChargesAmount),
		RecurringAmount:        money(a.RecurringAmount),
		ChargesAndRent:         money(a.ChargesAndRent),
		RecurringChargesAmount: money(a.RecurringChargesAmount),
		LateFee:                money(a.LateFee),
		NumberOfDaysLate:       a.NumberOfDaysLate,
		DailyLateFee:           money(a.DailyLateFee),
		PayableLateFee:         money(a.PayableLateFee),
		PayableAmount:          money(a.PayableAmount),
		IsLateFeeApplicable:    a.IsLateFeeApplicable,
		Charges:                chargeDTOs(a.Charges),
		CreatedAt:              a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.PayedLateFee.Valid {
		fee := money(a.PayedLateFee.Decimal)
		out.PayedLateFee = &fee
	}
	return out
}

// PaymentDTO is the wire form of a payment.
type PaymentDTO struct {
	ID          int64  `json:"id"`
	InvoiceID   int64  `json:"invoice_id"`
	Amount      string `json:"amount"`
	Method      string `json:"method"`
	PaymentDate string `json:"payment_date"`
	AccountID   *int64 `json:"account_id,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
}

func paymentDTO(p billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		Amount:      money(p.Amount),
		Method:      string(p.Method),
		PaymentDate: formatDate(p.PaymentDate),
		AccountID:   p.AccountID,
		ExternalRef: p.ExternalRef,
	}
}

// PolicyDTO is the wire form of a resolved late-fee policy.
type PolicyDTO struct {
	PropertyID       int64  `json:"property_id"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	FeeType          string `json:"fee_type"`
	BaseAmount       string `json:"base_amount"`
	EligibleCharges  string `json:"eligible_charges"`
	ChargeDaily      bool   `json:"charge_daily"`
	DailyCapPerMonth string `json:"daily_cap_per_month"`
	GracePeriodType  string `json:"grace_period_type"`
	GracePeriodValue int    `json:"grace_period_value"`
	IsExpired        bool   `json:"is_expired"`
	IsSentinel       bool   `json:"is_sentinel"`
}

func policyDTO(r policy.Resolved) PolicyDTO {
	p := r.Policy
	return PolicyDTO{
		PropertyID:       p.PropertyID,
		StartDate:        formatDate(p.StartDate),
		EndDate:          formatDate(p.EndDate),
		FeeType:          string(p.FeeType),
		BaseAmount:       money(p.BaseAmount),
		EligibleCharges:  string(p.EligibleCharges),
		ChargeDaily:      p.ChargeDaily,
		DailyCapPerMonth: money(p.DailyCapPerMonth),
		GracePeriodType:  string(p.GracePeriodType),
		GracePeriodValue: p.GracePeriodValue,
		IsExpired:        r.IsExpired,
		IsSentinel:       r.IsSentinel,
	}
}

// AccountDTO is the wire form of a ledger account.
type AccountDTO struct {
	ID          int64  `json:"id"`
	HolderKind  string `json:"holder_kind"`
	HolderID    int64  `json:"holder_id"`
	AccountType string `json:"account_type"`
	SubType     string `json:"sub_type"`
	Label       string `json:"label,omitempty"`
}

func accountDTO(a billing.GLAccount) AccountDTO {
	return AccountDTO{
		ID:          a.ID,
		HolderKind:  string(a.HolderKind),
		HolderID:    a.HolderID,
		AccountType: string(a.AccountType),
		SubType:     string(a.SubType),
		Label:       a.Label,
	}
}

// TransactionDTO is the wire form of a journal row.
type TransactionDTO struct {
	ID          int64     `json:"id"`
	GLAccountID int64     `json:"gl_account_id"`
	Direction   string    `json:"direction"`
	Amount      string    `json:"amount"`
	Description string    `json:"description,omitempty"`
	EventRef    uuid.UUID `json:"event_ref"`
	CreatedAt   string    `json:"created_at"`
}

func transactionDTO(t billing.GLTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          t.ID,
		GLAccountID: t.GLAccountID,
		Direction:   string(t.Direction),
		Amount:      money(t.Amount),
		Description: t.Description,
		EventRef:    t.EventRef,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// EventBalanceDTO reports one unbalanced ledger event.
type EventBalanceDTO struct {
	EventRef uuid.UUID `json:"event_ref"`
	Debit    string    `json:"debit"`
	Credit   string    `json:"credit"`
}

type markPaidRequest struct {
	TenantID  int64  `json:"tenant_id" validate:"required,gt=0"`
	Method    string `json:"method" validate:"omitempty,oneof=BANK_TRANSFER CARD"`
	AccountID *int64 `json:"account_id" validate:"omitempty,gt=0"`
}

type createChargeRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Notes       string          `json:"notes" validate:"max=2000"`
	Amount      decimal.Decimal `json:"amount"`
	GLAccountID *int64          `json:"gl_account_id" validate:"omitempty,gt=0"`
	TenantID    int64           `json:"tenant_id" validate:"gte=0"`
	UnitID      int64           `json:"unit_id" validate:"required,gt=0"`
	Type        string          `json:"type" validate:"required,oneof=ONE_TIME RECURRING"`
	Status      string          `json:"status" validate:"omitempty,oneof=UNPAID NOT_VERIFIED VERIFIED REJECTED"`
}

type updatePolicyRequest struct {
	StartDate        string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	FeeType          string          `json:"fee_type" validate:"required,oneof=FLAT PERCENTAGE"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	EligibleCharges  string          `json:"eligible_charges" validate:"required,oneof=EVERY_CHARGE ONLY_RECURRING_RENT ALL_RECURRING_CHARGES"`
	ChargeDaily      bool            `json:"charge_daily"`
	DailyCapPerMonth decimal.Decimal `json:"daily_cap_per_month"`
	GracePeriodType  string          `json:"grace_period_type" validate:"required,oneof=NONE NUMBER_OF_DAYS TILL_DATE_OF_MONTH"`
	GracePeriodValue int             `json:"grace_period_value" validate:"gte=0"`
}

type triggerResponse struct {
	Invoice        InvoiceDTO `json:"invoice"`
	Materialized   int        `json:"materialized"`
	BoundCharges   int        `json:"bound_charges"`
	RolledInvoices []int64    `json:"rolled_invoices"`
}

type webhookResponse struct {
	Outcome string `json:"outcome"`
}
