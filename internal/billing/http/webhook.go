package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/payments"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

const (
	webhookModule   = "gateway"
	maxWebhookBytes = 1 << 20
)

// handleGatewayWebhook acknowledges every event it can attribute or safely drop.
// Processing failures answer 5xx so the gateway redelivers.
func (h *Handler) handleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}
	if err := payments.VerifySignature(h.webhookSecret, body, r.Header.Get(payments.SignatureHeader)); err != nil {
		h.logger.Warn("gateway webhook rejected", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	evt, err := payments.ParseGatewayEvent(body)
	if err != nil {
		h.fail(w, r, "parse gateway event", err)
		return
	}

	if h.deduper != nil && evt.ID != "" {
		switch err := h.deduper.CheckAndInsert(r.Context(), evt.ID, webhookModule); {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			h.ack(w, payments.OutcomeDuplicate)
			return
		case err != nil:
			// Dedupe is an optimisation; the reconciler is idempotent per invoice.
			h.logger.Warn("webhook dedupe unavailable", slog.String("event_id", evt.ID), slog.Any("error", err))
		}
	}

	outcome, err := h.svc.Reconciler.HandleEvent(r.Context(), evt)
	if err != nil && !errors.Is(err, billing.ErrUnknownInvoice) {
		if h.deduper != nil && evt.ID != "" {
			if derr := h.deduper.Delete(r.Context(), evt.ID, webhookModule); derr != nil {
				h.logger.Warn("webhook dedupe rollback failed", slog.String("event_id", evt.ID), slog.Any("error", derr))
			}
		}
		h.metrics.ObserveWebhook("failed")
		h.logger.Error("gateway event failed", slog.String("event_id", evt.ID), slog.Int64("invoice_id", evt.InvoiceID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "event not processed")
		return
	}
	h.ack(w, outcome)
}

func (h *Handler) ack(w http.ResponseWriter, outcome payments.Outcome) {
	h.metrics.ObserveWebhook(string(outcome))
	httpx.JSON(w, http.StatusOK, webhookResponse{Outcome: string(outcome)})
}
