// Package http exposes the billing JSON surface and the gateway webhook.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/charges"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/ledger"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/payments"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
)

// Deduper remembers processed webhook event ids.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Services groups the billing services served over HTTP.
type Services struct {
	Engine     *invoices.Engine
	Invoices   *invoices.Query
	Charges    *charges.Service
	Policies   *policy.Service
	Ledger     *ledger.Service
	Reconciler *payments.Reconciler
}

// Handler wires billing endpoints.
type Handler struct {
	logger        *slog.Logger
	svc           Services
	deduper       Deduper
	metrics       *jobmetrics.Metrics
	webhookSecret string
	rateLimit     func(http.Handler) http.Handler
}

// Option customises the handler.
type Option func(*Handler)

// WithDeduper drops replayed gateway events before they reach the reconciler.
func WithDeduper(d Deduper) Option {
	return func(h *Handler) { h.deduper = d }
}

// WithWebhookSecret enables signature verification on the gateway webhook.
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) { h.webhookSecret = secret }
}

// WithMetrics counts webhook outcomes.
func WithMetrics(m *jobmetrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, svc Services, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		svc:       svc,
		rateLimit: httprate.LimitByIP(30, time.Minute),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes registers the billing routes under /billing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/invoices", h.handleListInvoices)
		r.Get("/invoices/{id}", h.handleGetInvoice)
		r.Post("/invoices/{id}/mark-paid", h.handleMarkPaid)

		r.Get("/charges", h.handleListCharges)
		r.Get("/charges/templates", h.handleListTemplates)
		r.Post("/charges", h.handleCreateCharge)
		r.Delete("/charges/{id}", h.handleDeleteCharge)

		r.Get("/payments", h.handleListPayments)

		r.Get("/properties/{id}/late-fee-policy", h.handleGetPolicy)
		r.Put("/properties/{id}/late-fee-policy", h.handleUpdatePolicy)

		r.Get("/ledger/accounts", h.handleListAccounts)
		r.Get("/ledger/transactions", h.handleListTransactions)
		r.Get("/ledger/unbalanced", h.handleUnbalanced)

		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/units/{id}/invoices", h.handleTriggerInvoice)
		})

		r.Post("/webhooks/gateway", h.handleGatewayWebhook)
	})
}

// classify maps billing sentinels onto transport sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, billing.ErrUnknownInvoice):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, billing.ErrValidation),
		errors.Is(err, billing.ErrInvalidPaymentMethod),
		errors.Is(err, billing.ErrChargeTypeContradiction):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, billing.ErrTenantMismatch):
		return fmt.Errorf("%w: %v", httpx.ErrForbidden, err)
	case errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrChargeBound),
		errors.Is(err, billing.ErrIntervalOverlap),
		errors.Is(err, billing.ErrNoActiveLease):
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	default:
		return err
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	classified := classify(err)
	if errors.Is(classified, httpx.ErrValidation) || errors.Is(classified, httpx.ErrNotFound) {
		h.logger.Debug(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", httpx.ErrValidation, chi.URLParam(r, "id"))
	}
	return id, nil
}

// queryParser collects query parameter errors.
type queryParser struct {
	r   *http.Request
	err error
}

func (p *queryParser) int64(name string) int64 {
	raw := p.r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		p.fail(name)
		return 0
	}
	return v
}

func (p *queryParser) date(name string) *time.Time {
	raw := p.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		p.fail(name)
		return nil
	}
	return &t
}

func (p *queryParser) oneOf(name string, allowed ...string) string {
	raw := p.r.URL.Query().Get(name)
	if raw == "" {
		return ""
	}
	for _, a := range allowed {
		if raw == a {
			return raw
		}
	}
	p.fail(name)
	return ""
}

func (p *queryParser) fail(name string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: invalid query parameter %s", httpx.ErrValidation, name)
	}
}
