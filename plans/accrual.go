/*
accrual.go - Business-time accrual calculator

PURPOSE:
  Computes how much profit a deposit has actually earned at an instant.
  Profit accrues linearly over business-day minutes only, starting at the
  deposit's effective start and stopping at the earliest of:
    - the as-of instant
    - the deposit's explicit end date (early termination)
    - start + 60 calendar days (the hard cap)

FORMULA:
  dailyProfit = principal * ratePercent / 100
  profit      = dailyProfit * businessMinutes / 1440     (rounded to cents)

  Weekends contribute nothing, so plotted against wall-clock time the curve
  is flat from Saturday 00:00 to Monday 00:00. There is no grace period:
  the first business minute after start already earns.

TIME ZONE:
  Weekday boundaries are local midnights in Calculator.Location. The server
  and the live ticker must share the same location or baselines drift at
  day boundaries. The default is UTC.

EXAMPLE:
  calc := plans.NewCalculator(plans.DefaultSchedule(), time.UTC)
  // Mon 09:00 -> Tue 09:00 at 6% on 100 = 6.00
  profit := calc.AccruedProfit(deposit, tuesday9am)

SEE ALSO:
  - generic/time.go: BusinessMinutes
  - projection.go: Up-front projection (independent calculation)
  - live/controller.go: Calls AccruedProfit at sync and every tick
*/
package plans

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
)

// CapDays is the accrual horizon in calendar days. It is a business rule,
// independent of the nominal plan duration used for projections.
const CapDays = 60

var minutesPerDay = decimal.NewFromInt(generic.MinutesPerDay)

// Calculator accrues profit for deposits.
type Calculator struct {
	Schedule *RateSchedule
	Location *time.Location
}

// NewCalculator returns a calculator using loc for weekday boundaries (nil = UTC).
func NewCalculator(schedule *RateSchedule, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{Schedule: schedule, Location: loc}
}

func (c *Calculator) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// RateFor returns the deposit's rate: its stored override, else the schedule's.
func (c *Calculator) RateFor(d Deposit) decimal.Decimal {
	if d.RatePercent.Valid {
		return d.RatePercent.Decimal
	}
	return c.Schedule.RateFor(d.Principal)
}

// DailyProfit returns the unrounded profit of one full business day.
func (c *Calculator) DailyProfit(d Deposit) decimal.Decimal {
	return d.Principal.Mul(generic.Percent(c.RateFor(d)))
}

// Cap returns the instant accrual stops regardless of status, or nil when the
// deposit has no start.
func (c *Calculator) Cap(d Deposit) *time.Time {
	start := d.Start()
	if start == nil {
		return nil
	}
	limit := generic.AddCalendarDays(*start, CapDays, c.location())
	return &limit
}

// AccrualEnd returns min(EndDate, cap), the last instant the deposit can earn.
func (c *Calculator) AccrualEnd(d Deposit) *time.Time {
	return generic.EarliestOf(d.EndDate, c.Cap(d))
}

// BusinessMinutes returns the business minutes the deposit has accrued by asOf.
func (c *Calculator) BusinessMinutes(d Deposit, asOf time.Time) decimal.Decimal {
	start := d.Start()
	if start == nil {
		return decimal.Zero
	}
	upper := asOf
	if end := c.AccrualEnd(d); end != nil && end.Before(upper) {
		upper = *end
	}
	if !start.Before(upper) {
		return decimal.Zero
	}
	return generic.BusinessMinutes(*start, upper, c.location())
}

// AccruedProfit returns the profit earned by asOf, rounded to cents.
// Deposits without a start yield zero.
func (c *Calculator) AccruedProfit(d Deposit, asOf time.Time) decimal.Decimal {
	minutes := c.BusinessMinutes(d, asOf)
	if minutes.IsZero() {
		return decimal.Zero
	}
	return generic.RoundCents(c.DailyProfit(d).Mul(minutes).Div(minutesPerDay))
}

// FullTermProfit is the profit a deposit earns by the end of its accrual window.
func (c *Calculator) FullTermProfit(d Deposit) decimal.Decimal {
	end := c.AccrualEnd(d)
	if end == nil {
		return decimal.Zero
	}
	return c.AccruedProfit(d, *end)
}

// IsMatured reports whether the deposit can no longer accrue at now.
func (c *Calculator) IsMatured(d Deposit, now time.Time) bool {
	end := c.AccrualEnd(d)
	return end != nil && !now.Before(*end)
}
