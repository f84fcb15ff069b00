package plans_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// 2025-03-03 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

func deposit(principal string, rate string, start time.Time) plans.Deposit {
	d := plans.Deposit{
		ID:        "dep-1",
		Principal: dec(principal),
		StartDate: generic.TimePtr(start),
		Status:    plans.StatusActive,
	}
	if rate != "" {
		d.RatePercent = decimal.NewNullDecimal(dec(rate))
	}
	return d
}

func newCalc() *plans.Calculator {
	return plans.NewCalculator(plans.DefaultSchedule(), time.UTC)
}

// =============================================================================
// RATE SCHEDULE
// =============================================================================

func TestRateFor_TierLookup(t *testing.T) {
	s := plans.DefaultSchedule()

	cases := []struct {
		amount string
		want   string
	}{
		{"20", "2"},
		{"49.99", "2"},
		{"100", "2.5"},
		{"999", "2.5"},
		{"1000", "3"},
		{"9999.99", "3"},
		{"10000", "4"},
		{"1000000", "4"},
	}
	for _, tc := range cases {
		assertMoney(t, tc.want, s.RateFor(dec(tc.amount)), "amount", tc.amount)
	}
}

func TestRateFor_BelowSmallestTier_UsesSmallestRate(t *testing.T) {
	// GIVEN: A schedule whose smallest tier is 20
	// WHEN: Resolving 5 and 0
	// THEN: The smallest tier's rate is returned, never "no rate"
	s := plans.DefaultSchedule()
	assertMoney(t, "2", s.RateFor(dec("5")))
	assertMoney(t, "2", s.RateFor(decimal.Zero))
}

func TestRateFor_Monotonic(t *testing.T) {
	s := plans.MustRateSchedule([]plans.RateTier{
		{Amount: dec("500"), DailyRatePercent: dec("3")},
		{Amount: dec("10"), DailyRatePercent: dec("1")},
		{Amount: dec("100"), DailyRatePercent: dec("2")},
	})

	prev := s.RateFor(decimal.Zero)
	for a := int64(1); a <= 1000; a++ {
		rate := s.RateFor(decimal.NewFromInt(a))
		require.Truef(t, prev.LessThanOrEqual(rate), "rate decreased at %d: %s -> %s", a, prev, rate)
		prev = rate
	}

	shipped := plans.DefaultSchedule()
	prev = shipped.RateFor(decimal.Zero)
	for a := int64(0); a <= 25000; a += 7 {
		rate := shipped.RateFor(decimal.NewFromInt(a))
		require.True(t, prev.LessThanOrEqual(rate))
		prev = rate
	}
}

func TestNewRateSchedule_Validation(t *testing.T) {
	_, err := plans.NewRateSchedule(nil)
	assert.ErrorIs(t, err, generic.ErrEmptySchedule)

	_, err = plans.NewRateSchedule([]plans.RateTier{{Amount: dec("-1"), DailyRatePercent: dec("2")}})
	assert.ErrorIs(t, err, generic.ErrInvalidTier)

	s, err := plans.NewRateSchedule([]plans.RateTier{
		{Amount: dec("200"), DailyRatePercent: dec("3")},
		{Amount: dec("100"), DailyRatePercent: dec("2")},
	})
	require.NoError(t, err)
	tiers := s.Tiers()
	require.Len(t, tiers, 2)
	assertMoney(t, "100", tiers[0].Amount)
}

func TestRateFor_ZeroSchedule(t *testing.T) {
	var s *plans.RateSchedule
	assert.True(t, s.RateFor(dec("100")).IsZero())
	assert.Equal(t, 0, s.Len())
}

// =============================================================================
// PROJECTION
// =============================================================================

func TestProject_ScenarioA(t *testing.T) {
	// GIVEN: $1000 at 7% over 60 calendar days
	// THEN: 42 accrual days, 70.00/day, 2940.00 profit, 3940.00 payout
	p := plans.Project(dec("1000"), dec("7"), 60)

	assert.Equal(t, 42, p.AccrualDays)
	assertMoney(t, "70.00", p.DailyProfit)
	assertMoney(t, "2940.00", p.TotalProfit)
	assertMoney(t, "3940.00", p.TotalPayout)
}

func TestProject_ZeroDays(t *testing.T) {
	p := plans.Project(dec("1000"), dec("3"), 0)
	assert.Equal(t, 0, p.AccrualDays)
	assert.True(t, p.TotalProfit.IsZero())
	assertMoney(t, "1000", p.TotalPayout)

	neg := plans.Project(dec("1000"), dec("3"), -14)
	assert.Equal(t, 0, neg.AccrualDays)
	assert.True(t, neg.TotalProfit.IsZero())
}

func TestProject_Consistency(t *testing.T) {
	principals := []string{"0.01", "20", "33.33", "1000", "12345.67"}
	rates := []string{"0", "2", "2.5", "3.33", "7"}
	for _, pr := range principals {
		for _, r := range rates {
			for days := 0; days <= 90; days += 13 {
				p := plans.Project(dec(pr), dec(r), days)
				assert.Equal(t, days*5/7, p.AccrualDays)
				assert.True(t, p.TotalProfit.Equal(p.DailyProfit.Mul(decimal.NewFromInt(int64(p.AccrualDays)))))
				assert.True(t, p.TotalPayout.Equal(dec(pr).Add(p.TotalProfit)))
				assert.True(t, p.DailyProfit.Equal(p.DailyProfit.Round(2)))
			}
		}
	}
}

func TestProject_Idempotent(t *testing.T) {
	a := plans.Project(dec("2000"), dec("3"), 60)
	b := plans.Project(dec("2000"), dec("3"), 60)
	assert.Equal(t, a, b)
}

// =============================================================================
// ACCRUAL
// =============================================================================

func TestAccrued_ScenarioB_OneFullWeekday(t *testing.T) {
	// GIVEN: $100 at 6% starting Monday 09:00
	// WHEN: As of Tuesday 09:00 (1440 business minutes)
	// THEN: 6.00
	d := deposit("100", "6", at(3, 9, 0))
	assertMoney(t, "6.00", newCalc().AccruedProfit(d, at(4, 9, 0)))
}

func TestAccrued_ScenarioC_FridayNightToMonday(t *testing.T) {
	// GIVEN: $100 at 6% starting Friday 23:00
	// WHEN: As of Monday 00:00, only Friday 23:00-24:00 has accrued (60 min)
	// THEN: 100 * 0.06 * 60/1440 = 0.25
	// AND: Monday's first hour is a weekday, so by 01:00 120 minutes count
	d := deposit("100", "6", at(7, 23, 0))
	calc := newCalc()

	assertMoney(t, "60", calc.BusinessMinutes(d, at(10, 0, 0)))
	assertMoney(t, "0.25", calc.AccruedProfit(d, at(10, 0, 0)))

	assertMoney(t, "120", calc.BusinessMinutes(d, at(10, 1, 0)))
	assertMoney(t, "0.50", calc.AccruedProfit(d, at(10, 1, 0)))
}

func TestAccrued_WeekendFlat(t *testing.T) {
	// GIVEN: A deposit starting Monday 00:00
	// THEN: Nothing accrues between Saturday 00:00 and Monday 00:00
	d := deposit("1000", "3", at(3, 0, 0))
	calc := newCalc()

	saturday := calc.AccruedProfit(d, at(8, 0, 0))
	sunday := calc.AccruedProfit(d, at(9, 12, 0))
	monday := calc.AccruedProfit(d, at(10, 0, 0))

	assertMoney(t, "150.00", saturday)
	assert.True(t, saturday.Equal(sunday))
	assert.True(t, saturday.Equal(monday))
}

func TestAccrued_CapAt60CalendarDays(t *testing.T) {
	d := deposit("500", "2.5", at(3, 9, 30))
	calc := newCalc()
	start := *d.StartDate

	day60 := calc.AccruedProfit(d, start.AddDate(0, 0, 60))
	day61 := calc.AccruedProfit(d, start.AddDate(0, 0, 61))
	day365 := calc.AccruedProfit(d, start.AddDate(1, 0, 0))

	assert.True(t, day60.Equal(day61), "day60=%s day61=%s", day60, day61)
	assert.True(t, day60.Equal(day365))
	assert.True(t, day60.Equal(calc.FullTermProfit(d)))
	// Mon 09:30 + 60 days is Friday 09:30 eight weeks later: 44 business days.
	assertMoney(t, "550.00", day60)
}

func TestAccrued_Monotonic(t *testing.T) {
	d := deposit("2000", "", at(5, 14, 17))
	calc := newCalc()

	prev := decimal.Zero
	for ts := at(5, 0, 0); ts.Before(at(5, 0, 0).AddDate(0, 0, 62)); ts = ts.Add(37 * time.Minute) {
		got := calc.AccruedProfit(d, ts)
		require.Truef(t, prev.LessThanOrEqual(got), "decreased at %s: %s -> %s", ts, prev, got)
		prev = got
	}
}

func TestAccrued_NoStart_Zero(t *testing.T) {
	d := plans.Deposit{ID: "x", Principal: dec("1000"), Status: plans.StatusActive}
	calc := newCalc()
	for _, asOf := range []time.Time{at(3, 0, 0), at(20, 0, 0), time.Time{}} {
		assert.True(t, calc.AccruedProfit(d, asOf).IsZero())
	}
	assert.Nil(t, calc.Cap(d))
	assert.True(t, calc.FullTermProfit(d).IsZero())
}

func TestAccrued_ApprovedAtFallback(t *testing.T) {
	d := plans.Deposit{
		Principal:   dec("100"),
		RatePercent: decimal.NewNullDecimal(dec("6")),
		ApprovedAt:  generic.TimePtr(at(3, 9, 0)),
	}
	assertMoney(t, "6.00", newCalc().AccruedProfit(d, at(4, 9, 0)))

	// StartDate wins over ApprovedAt
	d.StartDate = generic.TimePtr(at(4, 9, 0))
	assert.True(t, newCalc().AccruedProfit(d, at(4, 9, 0)).IsZero())
}

func TestAccrued_BeforeStart_Zero(t *testing.T) {
	d := deposit("100", "6", at(4, 9, 0))
	assert.True(t, newCalc().AccruedProfit(d, at(3, 9, 0)).IsZero())
	assert.True(t, newCalc().AccruedProfit(d, at(4, 9, 0)).IsZero())
}

func TestAccrued_EndDateStopsAccrual(t *testing.T) {
	d := deposit("100", "6", at(3, 9, 0))
	d.EndDate = generic.TimePtr(at(4, 9, 0))
	calc := newCalc()

	assertMoney(t, "6.00", calc.AccruedProfit(d, at(4, 9, 0)))
	assertMoney(t, "6.00", calc.AccruedProfit(d, at(14, 9, 0)))
	assert.True(t, calc.IsMatured(d, at(4, 9, 0)))
	assert.False(t, calc.IsMatured(d, at(4, 8, 59)))
}

func TestAccrued_NoGracePeriod(t *testing.T) {
	// 20000 at 4% = 800/day = 0.5556/minute
	d := deposit("20000", "4", at(3, 9, 0))
	assertMoney(t, "0.56", newCalc().AccruedProfit(d, at(3, 9, 1)))
}

func TestAccrued_RateOverrideBeatsSchedule(t *testing.T) {
	calc := newCalc()
	withSchedule := deposit("1000", "", at(3, 0, 0))
	withOverride := deposit("1000", "7", at(3, 0, 0))

	assertMoney(t, "3", calc.RateFor(withSchedule))
	assertMoney(t, "7", calc.RateFor(withOverride))
	assertMoney(t, "30.00", calc.AccruedProfit(withSchedule, at(4, 0, 0)))
	assertMoney(t, "70.00", calc.AccruedProfit(withOverride, at(4, 0, 0)))
}

func TestAccrued_LocationDecidesWeekday(t *testing.T) {
	// Friday 20:00 UTC is Saturday 06:00 at UTC+10.
	plus10 := time.FixedZone("UTC+10", 10*60*60)
	d := deposit("100", "6", at(7, 20, 0))
	asOf := at(7, 22, 0)

	utc := plans.NewCalculator(plans.DefaultSchedule(), time.UTC)
	east := plans.NewCalculator(plans.DefaultSchedule(), plus10)

	assertMoney(t, "120", utc.BusinessMinutes(d, asOf))
	assert.True(t, east.BusinessMinutes(d, asOf).IsZero())
}

// =============================================================================
// PORTFOLIO + CATALOG
// =============================================================================

func TestPortfolio_ActiveAndLatest(t *testing.T) {
	older := deposit("100", "", at(3, 0, 0))
	older.ID = "older"
	newer := deposit("200", "", at(5, 0, 0))
	newer.ID = "newer"
	pending := plans.Deposit{ID: "pending", Principal: dec("999"), Status: plans.StatusPending}
	undated := plans.Deposit{ID: "undated", Principal: dec("50"), Status: plans.StatusActive}

	ds := []plans.Deposit{older, pending, newer, undated}

	active := plans.ActiveDeposits(ds)
	require.Len(t, active, 2)
	assert.Equal(t, generic.DepositID("older"), active[0].ID)

	latest, ok := plans.LatestActive(ds)
	require.True(t, ok)
	assert.Equal(t, generic.DepositID("newer"), latest.ID)

	assertMoney(t, "300", plans.Capital(ds))

	_, ok = plans.LatestActive([]plans.Deposit{pending})
	assert.False(t, ok)
}

func TestPortfolio_Remaining(t *testing.T) {
	start := at(3, 0, 0)
	assert.Equal(t, 60*24*time.Hour, plans.Remaining(start, start, time.UTC))
	assert.Equal(t, 24*time.Hour, plans.Remaining(start, start.AddDate(0, 0, 59), time.UTC))
	assert.Equal(t, time.Duration(0), plans.Remaining(start, start.AddDate(0, 0, 61), time.UTC))
}

func TestDepositKey(t *testing.T) {
	d := deposit("100", "", at(3, 9, 0))
	assert.Equal(t, plans.DepositKey("dep-1"), d.Key())

	d.ID = ""
	assert.Equal(t, plans.DepositKey("2025-03-03T09:00:00Z|100"), d.Key())
}

func TestDepositStatus_Transitions(t *testing.T) {
	assert.True(t, plans.StatusPending.CanTransition(plans.StatusActive))
	assert.True(t, plans.StatusPending.CanTransition(plans.StatusRejected))
	assert.True(t, plans.StatusActive.CanTransition(plans.StatusClosed))
	assert.False(t, plans.StatusActive.CanTransition(plans.StatusActive))
	assert.False(t, plans.StatusClosed.CanTransition(plans.StatusActive))
}

func TestCatalog_DefaultPlans(t *testing.T) {
	catalog := plans.DefaultCatalog()
	require.Len(t, catalog, 10)
	assert.Equal(t, "Plan A", catalog[0].Name)
	assert.Equal(t, "Plan J", catalog[9].Name)

	f := catalog[5].Quote()
	assert.Equal(t, "Plan F", f.Plan.Name)
	assertMoney(t, "30.00", f.Projection.DailyProfit)
	assert.Equal(t, 42, f.Projection.AccrualDays)
	assertMoney(t, "1260.00", f.Projection.TotalProfit)
	assertMoney(t, "2260.00", f.Projection.TotalPayout)

	quotes := plans.Quotes(catalog)
	assert.Len(t, quotes, 10)
}
