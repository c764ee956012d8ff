// Package scheduler holds the pure calendar and penalty arithmetic behind the
// notification windows. Nothing here touches storage or the clock.
package scheduler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Calendar converts instants into library calendar dates. Dates are returned
// as midnight UTC values carrying the civil date observed in the library's
// time zone, which is also how due dates are stored.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for loc. A nil location means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the library time zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Date returns the civil date of t in the library time zone.
func (c Calendar) Date(t time.Time) time.Time {
	y, m, d := t.In(c.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the library date of now.
func (c Calendar) Today(now time.Time) time.Time {
	return c.Date(now)
}

// Tomorrow returns the library date following now.
func (c Calendar) Tomorrow(now time.Time) time.Time {
	return c.Date(now).AddDate(0, 0, 1)
}

// DueDate returns the date a loan started at borrowedAt is due back.
func (c Calendar) DueDate(borrowedAt time.Time, periodDays int) time.Time {
	return c.Date(borrowedAt).AddDate(0, 0, periodDays)
}

// DaysOverdue returns the whole days between due and today, rounded up. It is
// zero when the loan is not yet overdue.
func DaysOverdue(due, today time.Time) int {
	if !today.After(due) {
		return 0
	}
	diff := today.Sub(due)
	days := int(diff / day)
	if diff%day != 0 {
		days++
	}
	return days
}

// PenaltyPolicy prices overdue days.
type PenaltyPolicy struct {
	UnitAmount decimal.Decimal
	Currency   string
}

// NewPenaltyPolicy parses unit as a decimal amount per overdue day.
func NewPenaltyPolicy(unit, currency string) (PenaltyPolicy, error) {
	amount, err := decimal.NewFromString(unit)
	if err != nil {
		return PenaltyPolicy{}, fmt.Errorf("invalid unit penalty %q: %w", unit, err)
	}
	if amount.IsNegative() {
		return PenaltyPolicy{}, fmt.Errorf("unit penalty must not be negative: %s", unit)
	}
	return PenaltyPolicy{UnitAmount: amount, Currency: currency}, nil
}

// Amount returns the penalty for the given number of overdue days.
func (p PenaltyPolicy) Amount(daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}
	return p.UnitAmount.Mul(decimal.NewFromInt(int64(daysOverdue)))
}

// Format renders amount with two decimals and the currency code, if any.
func (p PenaltyPolicy) Format(amount decimal.Decimal) string {
	if p.Currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + p.Currency
}
