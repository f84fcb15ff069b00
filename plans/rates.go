package plans

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
)

// =============================================================================
// RATE SCHEDULE - Principal amount -> daily return percentage
// =============================================================================

// RateTier maps a principal threshold to a daily rate in percent.
type RateTier struct {
	Amount           decimal.Decimal
	DailyRatePercent decimal.Decimal
}

// RateSchedule is an immutable, ascending list of tiers.
// Build it with NewRateSchedule; the zero value resolves every amount to zero.
type RateSchedule struct {
	tiers []RateTier
}

// NewRateSchedule validates and sorts tiers by amount.
func NewRateSchedule(tiers []RateTier) (*RateSchedule, error) {
	if len(tiers) == 0 {
		return nil, generic.ErrEmptySchedule
	}
	sorted := make([]RateTier, len(tiers))
	copy(sorted, tiers)
	for i, t := range sorted {
		if t.Amount.IsNegative() || t.DailyRatePercent.IsNegative() {
			return nil, fmt.Errorf("tier %d (amount %s, rate %s): %w",
				i, t.Amount, t.DailyRatePercent, generic.ErrInvalidTier)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.LessThan(sorted[j].Amount)
	})
	return &RateSchedule{tiers: sorted}, nil
}

// MustRateSchedule is NewRateSchedule for static tables; it panics on error.
func MustRateSchedule(tiers []RateTier) *RateSchedule {
	s, err := NewRateSchedule(tiers)
	if err != nil {
		panic(err)
	}
	return s
}

// RateFor resolves the daily rate for a principal: the tier with the largest
// amount <= principal wins. Principals below every tier get the smallest
// tier's rate.
func (s *RateSchedule) RateFor(amount decimal.Decimal) decimal.Decimal {
	if s == nil || len(s.tiers) == 0 {
		return decimal.Zero
	}
	rate := s.tiers[0].DailyRatePercent
	for _, t := range s.tiers {
		if t.Amount.GreaterThan(amount) {
			break
		}
		rate = t.DailyRatePercent
	}
	return rate
}

// Tiers returns a copy of the tiers in ascending order.
func (s *RateSchedule) Tiers() []RateTier {
	if s == nil {
		return nil
	}
	out := make([]RateTier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Len returns the number of tiers.
func (s *RateSchedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tiers)
}

// =============================================================================
// SHIPPED SCHEDULE
// =============================================================================

func tier(amount int64, rate string) RateTier {
	return RateTier{Amount: decimal.NewFromInt(amount), DailyRatePercent: generic.MustParseDecimal(rate)}
}

// DefaultTiers is the shipped pricing table.
func DefaultTiers() []RateTier {
	return []RateTier{
		tier(20, "2"),
		tier(50, "2"),
		tier(100, "2.5"),
		tier(200, "2.5"),
		tier(500, "2.5"),
		tier(1000, "3"),
		tier(2000, "3"),
		tier(5000, "3"),
		tier(10000, "4"),
		tier(20000, "4"),
	}
}

// DefaultSchedule returns a schedule built from DefaultTiers.
func DefaultSchedule() *RateSchedule {
	return MustRateSchedule(DefaultTiers())
}
