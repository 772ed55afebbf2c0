package invoices

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/assessment"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
)

// Query serves assessed invoices.
type Query struct {
	stores billing.Stores
	clock  calendar.Clock
}

// NewQuery constructs the invoice query service.
func NewQuery(stores billing.Stores, clock calendar.Clock) *Query {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Query{stores: stores, clock: clock}
}

// Get returns one assessed invoice.
func (q *Query) Get(ctx context.Context, id int64) (assessment.Assessed, error) {
	inv, err := q.stores.Invoices().GetInvoice(ctx, id)
	if err != nil {
		return assessment.Assessed{}, err
	}
	out, err := AssessAll(ctx, q.stores, q.clock.Now(), []billing.Invoice{inv})
	if err != nil {
		return assessment.Assessed{}, err
	}
	return out[0], nil
}

// List returns assessed invoices matching filter.
func (q *Query) List(ctx context.Context, filter billing.InvoiceFilter) ([]assessment.Assessed, error) {
	rows, err := q.stores.Invoices().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return AssessAll(ctx, q.stores, q.clock.Now(), rows)
}

// AssessAll evaluates invoices as of now in each property's zone, resolving each
// property's policy once.
func AssessAll(ctx context.Context, stores billing.Stores, now time.Time, rows []billing.Invoice) ([]assessment.Assessed, error) {
	if len(rows) == 0 {
		return []assessment.Assessed{}, nil
	}
	ids := make([]int64, len(rows))
	for i, inv := range rows {
		ids[i] = inv.ID
	}
	bound, err := stores.Charges().ListByInvoices(ctx, ids)
	if err != nil {
		return nil, err
	}

	type propertyView struct {
		resolved policy.Resolved
		today    time.Time
	}
	views := map[int64]propertyView{}
	out := make([]assessment.Assessed, 0, len(rows))
	for _, inv := range rows {
		view, ok := views[inv.PropertyID]
		if !ok {
			prop, err := stores.Properties().GetProperty(ctx, inv.PropertyID)
			if err != nil {
				return nil, err
			}
			today := calendar.DateOf(now, prop.Location())
			resolved, err := policy.Resolve(ctx, stores.Policies(), prop.ID, today)
			if err != nil {
				return nil, err
			}
			view = propertyView{resolved: resolved, today: today}
			views[inv.PropertyID] = view
		}
		out = append(out, assessment.Assess(inv, bound[inv.ID], view.resolved, view.today))
	}
	return out, nil
}
