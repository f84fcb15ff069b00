package plans

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
)

// =============================================================================
// PORTFOLIO - Aggregation over a user's deposits
// =============================================================================

// ActiveDeposits returns the deposits that count toward live totals: status
// active with a resolvable start. Order is preserved.
func ActiveDeposits(ds []Deposit) []Deposit {
	var out []Deposit
	for _, d := range ds {
		if d.IsActive() {
			out = append(out, d)
		}
	}
	return out
}

// LatestActive returns the active deposit with the most recent start.
func LatestActive(ds []Deposit) (Deposit, bool) {
	active := ActiveDeposits(ds)
	if len(active) == 0 {
		return Deposit{}, false
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Start().After(*active[j].Start())
	})
	return active[0], true
}

// Capital sums the principal of active deposits.
func Capital(ds []Deposit) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ActiveDeposits(ds) {
		total = total.Add(d.Principal)
	}
	return total
}

// Remaining returns the time left in the CapDays calendar window that began
// at start, floored at zero.
func Remaining(start, now time.Time, loc *time.Location) time.Duration {
	end := generic.AddCalendarDays(start, CapDays, loc)
	if !now.Before(end) {
		return 0
	}
	return end.Sub(now)
}

// AccruedTotal sums AccruedProfit over the active deposits at asOf.
func (c *Calculator) AccruedTotal(ds []Deposit, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ActiveDeposits(ds) {
		total = total.Add(c.AccruedProfit(d, asOf))
	}
	return total
}
