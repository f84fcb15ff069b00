package plans

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAN CATALOG - Fixed-amount plans offered on the invest page
// =============================================================================

// DefaultPlanDays is the nominal duration of every catalog plan.
const DefaultPlanDays = 60

// Plan is a fixed-amount offer. Its rate comes from the schedule at the
// plan's amount.
type Plan struct {
	Name        string
	Amount      decimal.Decimal
	RatePercent decimal.Decimal
	Days        int
}

// Quote is a plan with its projection.
type Quote struct {
	Plan       Plan
	Projection Projection
}

var planNames = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}

// Catalog builds one plan per schedule tier, named A, B, C... in ascending
// amount order.
func Catalog(schedule *RateSchedule) []Plan {
	tiers := schedule.Tiers()
	out := make([]Plan, 0, len(tiers))
	for i, t := range tiers {
		name := "Plan " + t.Amount.String()
		if i < len(planNames) {
			name = "Plan " + planNames[i]
		}
		out = append(out, Plan{
			Name:        name,
			Amount:      t.Amount,
			RatePercent: t.DailyRatePercent,
			Days:        DefaultPlanDays,
		})
	}
	return out
}

// DefaultCatalog is Catalog(DefaultSchedule()).
func DefaultCatalog() []Plan {
	return Catalog(DefaultSchedule())
}

// Quote projects a plan.
func (p Plan) Quote() Quote {
	return Quote{Plan: p, Projection: Project(p.Amount, p.RatePercent, p.Days)}
}

// Quotes projects every plan in the catalog.
func Quotes(catalog []Plan) []Quote {
	out := make([]Quote, len(catalog))
	for i, p := range catalog {
		out[i] = p.Quote()
	}
	return out
}
