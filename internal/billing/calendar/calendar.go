// Package calendar provides the clock and the civil-date arithmetic used for rent
// cycles and grace periods. A civil date is a time.Time at 00:00 UTC whose
// year/month/day are the property-local calendar day.
package calendar

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.At }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

var cycleDays = map[billing.RentCycle]int{
	billing.RentCycleWeekly:    7,
	billing.RentCycleMonthly:   30,
	billing.RentCycleQuarterly: 91,
	billing.RentCycleSixMonths: 182,
	billing.RentCycleYearly:    365,
}

// CycleLength returns the fixed day count of a rent cycle.
func CycleLength(cycle billing.RentCycle) (int, error) {
	days, ok := cycleDays[cycle]
	if !ok {
		return 0, fmt.Errorf("%w: unknown rent cycle %q", billing.ErrValidation, cycle)
	}
	return days, nil
}

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the civil date of instant t in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date(y, m, d)
}

// Today returns the civil date of clock.Now() in loc.
func Today(clock Clock, loc *time.Location) time.Time {
	return DateOf(clock.Now(), loc)
}

// AddDays shifts a civil date by n days.
func AddDays(date time.Time, n int) time.Time {
	return date.AddDate(0, 0, n)
}

// DaysBetween returns the whole days from a to b; negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	a = Date(a.Date())
	b = Date(b.Date())
	return int(b.Sub(a).Hours() / 24)
}

// WithDay replaces the day component of a civil date.
func WithDay(date time.Time, day int) time.Time {
	return Date(date.Year(), date.Month(), day)
}

// IntervalEnd is the inclusive last day of an interval starting at start.
func IntervalEnd(start time.Time, cycle billing.RentCycle) (time.Time, error) {
	days, err := CycleLength(cycle)
	if err != nil {
		return time.Time{}, err
	}
	return AddDays(start, days-1), nil
}

// NextInvoiceDate is the day a lease is due for its next invoice.
func NextInvoiceDate(lease billing.Lease, lastIntervalEnd *time.Time) time.Time {
	floor := AddDays(lease.StartDate, 1)
	if lastIntervalEnd == nil {
		return floor
	}
	next := AddDays(*lastIntervalEnd, 1)
	if next.Before(floor) {
		return floor
	}
	return next
}

// MonthBounds returns the UTC instants bounding the calendar month of t in loc:
// the first instant of the month and the first instant of the next month.
func MonthBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}
