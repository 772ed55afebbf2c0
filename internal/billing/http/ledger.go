package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	filter := billing.PaymentFilter{
		PaidFrom:      q.date("paid_from"),
		PaidTo:        q.date("paid_to"),
		InvoiceStatus: billing.InvoiceStatus(q.oneOf("invoice_status", invoiceStatuses...)),
	}
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	rows, err := h.svc.Reconciler.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(rows))
	out := make([]PaymentDTO, 0, page.PerPage)
	for _, p := range shared.Paginate(rows, page) {
		out = append(out, paymentDTO(p))
	}
	httpx.JSON(w, http.StatusOK, listResponse[PaymentDTO]{Data: out, Pagination: page})
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resolved, err := h.svc.Policies.Get(r.Context(), propertyID)
	if err != nil {
		h.fail(w, r, "get late fee policy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, policyDTO(resolved))
}

func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updatePolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Both dates already passed the datetime validator.
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	if _, err := h.svc.Policies.Update(r.Context(), propertyID, policy.UpdateInput{
		StartDate:        start,
		EndDate:          end,
		FeeType:          billing.FeeType(req.FeeType),
		BaseAmount:       req.BaseAmount,
		EligibleCharges:  billing.EligibleCharges(req.EligibleCharges),
		ChargeDaily:      req.ChargeDaily,
		DailyCapPerMonth: req.DailyCapPerMonth,
		GracePeriodType:  billing.GracePeriodType(req.GracePeriodType),
		GracePeriodValue: req.GracePeriodValue,
	}); err != nil {
		h.fail(w, r, "update late fee policy", err)
		return
	}
	resolved, err := h.svc.Policies.Get(r.Context(), propertyID)
	if err != nil {
		h.fail(w, r, "reload late fee policy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, policyDTO(resolved))
}

var (
	accountTypes = []string{
		string(billing.AccountTypeAsset), string(billing.AccountTypeLiability), string(billing.AccountTypeEquity),
		string(billing.AccountTypeIncome), string(billing.AccountTypeExpense),
	}
	holderKinds = []string{
		string(billing.HolderUnit), string(billing.HolderProject), string(billing.HolderInventory), string(billing.HolderProperty),
	}
)

func accountFilter(q *queryParser) billing.AccountFilter {
	return billing.AccountFilter{
		AccountType: billing.AccountType(q.oneOf("account_type", accountTypes...)),
		SubType:     billing.AccountSubType(q.r.URL.Query().Get("sub_type")),
		HolderKind:  billing.HolderKind(q.oneOf("holder_kind", holderKinds...)),
		HolderID:    q.int64("holder_id"),
	}
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	filter := accountFilter(&q)
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	rows, err := h.svc.Ledger.Accounts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list gl accounts", err)
		return
	}
	out := make([]AccountDTO, 0, len(rows))
	for _, a := range rows {
		out = append(out, accountDTO(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	filter := billing.TransactionFilter{
		AccountFilter: accountFilter(&q),
		AccountID:     q.int64("account_id"),
		Direction:     billing.Direction(q.oneOf("direction", string(billing.DirectionDebit), string(billing.DirectionCredit))),
	}
	if raw := r.URL.Query().Get("event_ref"); raw != "" {
		ref, err := uuid.Parse(raw)
		if err != nil {
			q.fail("event_ref")
		}
		filter.EventRef = ref
	}
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	rows, err := h.svc.Ledger.Transactions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list gl transactions", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(rows))
	out := make([]TransactionDTO, 0, page.PerPage)
	for _, t := range shared.Paginate(rows, page) {
		out = append(out, transactionDTO(t))
	}
	httpx.JSON(w, http.StatusOK, listResponse[TransactionDTO]{Data: out, Pagination: page})
}

func (h *Handler) handleUnbalanced(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Ledger.UnbalancedEvents(r.Context())
	if err != nil {
		h.fail(w, r, "list unbalanced events", err)
		return
	}
	out := make([]EventBalanceDTO, 0, len(rows))
	for _, b := range rows {
		out = append(out, EventBalanceDTO{EventRef: b.EventRef, Debit: money(b.Debit), Credit: money(b.Credit)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}
