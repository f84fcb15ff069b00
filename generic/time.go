package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BUSINESS TIME - Weekday-only elapsed time
// =============================================================================

// MinutesPerDay is the length of a full accrual day in minutes.
const MinutesPerDay = 1440

var millisPerMinute = decimal.NewFromInt(int64(time.Minute / time.Millisecond))

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func IsBusinessDay(t time.Time) bool { return !IsWeekend(t) }

// StartOfDay returns local midnight of the calendar day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// BusinessDuration returns the part of [from, to) that falls on Monday-Friday,
// with day boundaries at local midnight in loc. Returns zero when to <= from.
func BusinessDuration(from, to time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	if !to.After(from) {
		return 0
	}

	var total time.Duration
	day := StartOfDay(from, loc)
	for day.Before(to) {
		next := day.AddDate(0, 0, 1)
		if IsBusinessDay(day) {
			segStart := maxTime(from, day)
			segEnd := minTime(to, next)
			if segEnd.After(segStart) {
				total += segEnd.Sub(segStart)
			}
		}
		day = next
	}
	return total
}

// BusinessMinutes is BusinessDuration expressed in (fractional) minutes at
// millisecond resolution.
func BusinessMinutes(from, to time.Time, loc *time.Location) decimal.Decimal {
	d := BusinessDuration(from, to, loc)
	return decimal.NewFromInt(d.Milliseconds()).Div(millisPerMinute)
}

// AddCalendarDays adds n calendar days keeping the local wall-clock time in loc.
func AddCalendarDays(t time.Time, n int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).AddDate(0, 0, n)
}

// LoadLocation resolves a configured time zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// EarliestOf returns the earliest non-nil time, or nil when all are nil.
func EarliestOf(ts ...*time.Time) *time.Time {
	var out *time.Time
	for _, t := range ts {
		if t == nil {
			continue
		}
		if out == nil || t.Before(*out) {
			v := *t
			out = &v
		}
	}
	return out
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time { return &t }
