package util

import (
	"time"
)

// TradingCalendar knows which dates are trading days: every weekday that is
// not a listed holiday. Dates are compared by calendar day in UTC.
type TradingCalendar struct {
	holidays map[string]struct{}
}

// NewTradingCalendar creates a TradingCalendar with the given holidays.
func NewTradingCalendar(holidays ...time.Time) *TradingCalendar {
	tc := &TradingCalendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		tc.holidays[dayKey(h)] = struct{}{}
	}
	return tc
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }

// Truncate returns midnight UTC of t's calendar date.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether t falls on a trading day.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := tc.holidays[dayKey(t)]
	return !holiday
}

// LastTradingDay returns the latest trading day on or before t.
func (tc *TradingCalendar) LastTradingDay(t time.Time) time.Time {
	d := Truncate(t)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the first trading day strictly after t.
func (tc *TradingCalendar) NextTradingDay(t time.Time) time.Time {
	d := Truncate(t).AddDate(0, 0, 1)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TradingDaysBetween counts trading days in [start, end].
func (tc *TradingCalendar) TradingDaysBetween(start, end time.Time) int {
	var n int
	for d := Truncate(start); !d.After(Truncate(end)); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			n++
		}
	}
	return n
}
