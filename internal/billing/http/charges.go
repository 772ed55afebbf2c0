package http

import (
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/charges"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

// inclusive turns an end date into the exclusive bound of the following day.
func inclusive(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	next := t.AddDate(0, 0, 1)
	return &next
}

func (h *Handler) handleListCharges(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	filter := billing.ChargeFilter{
		PropertyID:  q.int64("property_id"),
		UnitID:      q.int64("unit_id"),
		InvoiceID:   q.int64("invoice_id"),
		Type:        billing.ChargeType(q.oneOf("type", string(billing.ChargeTypeOneTime), string(billing.ChargeTypeRecurring))),
		Status:      billing.ChargeStatus(q.oneOf("status", invoiceStatuses...)),
		CreatedFrom: q.date("created_from"),
		CreatedTo:   inclusive(q.date("created_to")),
	}
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	rows, err := h.svc.Charges.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list charges", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(rows))
	httpx.JSON(w, http.StatusOK, listResponse[ChargeDTO]{Data: chargeDTOs(shared.Paginate(rows, page)), Pagination: page})
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := queryParser{r: r}
	scope := billing.ChargeScope{
		PropertyID: q.int64("property_id"),
		UnitID:     q.int64("unit_id"),
		TenantID:   q.int64("tenant_id"),
	}
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	rows, err := h.svc.Charges.Templates(r.Context(), scope)
	if err != nil {
		h.fail(w, r, "list charge templates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": chargeDTOs(rows)})
}

func (h *Handler) handleCreateCharge(w http.ResponseWriter, r *http.Request) {
	var req createChargeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.svc.Charges.Create(r.Context(), charges.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Notes:       req.Notes,
		Amount:      req.Amount,
		GLAccountID: req.GLAccountID,
		TenantID:    req.TenantID,
		UnitID:      req.UnitID,
		Type:        billing.ChargeType(req.Type),
		Status:      billing.ChargeStatus(req.Status),
	})
	if err != nil {
		h.fail(w, r, "create charge", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, chargeDTO(created))
}

func (h *Handler) handleDeleteCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.svc.Charges.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete charge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
