package plans

import (
	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
)

// =============================================================================
// PLAN PROJECTION - "What will I earn?" before a deposit exists
// =============================================================================

// Business days per week over calendar days per week.
const (
	businessDaysPerWeek = 5
	daysPerWeek         = 7
)

// Projection is the up-front economics of a plan.
type Projection struct {
	DailyProfit decimal.Decimal
	AccrualDays int
	TotalProfit decimal.Decimal
	TotalPayout decimal.Decimal
}

// AccrualDays approximates the business days in a calendar window as
// floor(days * 5 / 7). It is not calendar-aware. Negative windows count as zero.
func AccrualDays(calendarDays int) int {
	if calendarDays <= 0 {
		return 0
	}
	return calendarDays * businessDaysPerWeek / daysPerWeek
}

// Project computes simple-interest plan economics. The daily profit is rounded
// to cents first so TotalProfit == DailyProfit * AccrualDays and
// TotalPayout == principal + TotalProfit hold exactly.
func Project(principal, ratePercent decimal.Decimal, calendarDays int) Projection {
	days := AccrualDays(calendarDays)
	daily := generic.RoundCents(principal.Mul(generic.Percent(ratePercent)))
	total := daily.Mul(decimal.NewFromInt(int64(days)))
	return Projection{
		DailyProfit: daily,
		AccrualDays: days,
		TotalProfit: total,
		TotalPayout: principal.Add(total),
	}
}
