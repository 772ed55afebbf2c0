package http

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/payments"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

var invoiceStatuses = []string{
	string(billing.InvoiceStatusUnpaid),
	string(billing.InvoiceStatusNotVerified),
	string(billing.InvoiceStatusVerified),
	string(billing.InvoiceStatusRejected),
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	filter := billing.InvoiceFilter{
		PropertyID:  q.int64("property_id"),
		UnitID:      q.int64("unit_id"),
		LeaseID:     q.int64("lease_id"),
		DueDate:     q.date("due_date"),
		Status:      billing.InvoiceStatus(q.oneOf("status", invoiceStatuses...)),
		ArrearOf:    q.int64("arrear_of"),
		CreatedFrom: q.date("created_from"),
		CreatedTo:   inclusive(q.date("created_to")),
	}
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	rows, err := h.svc.Invoices.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list invoices", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(rows))
	out := make([]InvoiceDTO, 0, page.PerPage)
	for _, a := range shared.Paginate(rows, page) {
		out = append(out, invoiceDTO(a))
	}
	httpx.JSON(w, http.StatusOK, listResponse[InvoiceDTO]{Data: out, Pagination: page})
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.svc.Invoices.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceDTO(a))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req markPaidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.svc.Reconciler.MarkAsPaid(r.Context(), payments.MarkPaidInput{
		InvoiceID: id,
		TenantID:  req.TenantID,
		Method:    billing.PaymentMethod(req.Method),
		AccountID: req.AccountID,
	})
	if err != nil {
		h.fail(w, r, "mark invoice paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceDTO(a))
}

// handleTriggerInvoice runs the engine for one unit outside the daily tick.
func (h *Handler) handleTriggerInvoice(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.svc.Engine.CreateInvoiceForUnitLease(r.Context(), unitID)
	if err != nil {
		h.fail(w, r, "trigger invoice", err)
		return
	}
	a, err := h.svc.Invoices.Get(r.Context(), res.Invoice.ID)
	if err != nil {
		h.fail(w, r, "load created invoice", err)
		return
	}
	rolled := res.RolledInvoices
	if rolled == nil {
		rolled = []int64{}
	}
	httpx.JSON(w, http.StatusCreated, triggerResponse{
		Invoice:        invoiceDTO(a),
		Materialized:   res.Materialized,
		BoundCharges:   res.BoundCharges,
		RolledInvoices: rolled,
	})
}
