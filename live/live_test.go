package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetOverview(ctx context.Context, userID generic.UserID) (OverviewPayload, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(OverviewPayload), args.Error(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// at returns a UTC instant in March 2025; the 3rd is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

func activeDeposit(id string, principal, rate string, start time.Time) plans.Deposit {
	return plans.Deposit{
		ID:          generic.DepositID(id),
		Principal:   dec(principal),
		RatePercent: decimal.NewNullDecimal(dec(rate)),
		StartDate:   &start,
		Status:      plans.StatusActive,
	}
}

func overview(netProfit string, deposits ...plans.Deposit) OverviewPayload {
	body := OverviewBody{NetProfit: FlexDecimal{Decimal: dec(netProfit), Set: true}}
	for _, d := range deposits {
		body.Deposits = append(body.Deposits, FromDeposit(d))
	}
	return OverviewPayload{Kind: PayloadOverview, Body: body}
}

type harness struct {
	src   *mockSource
	clock *ManualClock
	sched *ManualScheduler
	ctl   *Controller
}

func newTestController(t *testing.T, start time.Time, opts ...Option) *harness {
	t.Helper()
	h := &harness{src: &mockSource{}, clock: NewManualClock(start)}
	h.sched = NewManualScheduler(h.clock)
	base := []Option{
		WithClock(h.clock),
		WithScheduler(h.sched),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	calc := plans.NewCalculator(plans.DefaultSchedule(), time.UTC)
	h.ctl = NewController(h.src, "u1", calc, append(base, opts...)...)
	return h
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestController_TickBeforeSyncPublishesZero(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))

	assertMoney(t, "0", h.ctl.Tick())
	assert.Equal(t, StateUninitialized, h.ctl.State())
	_, ok := h.ctl.Snapshot()
	assert.False(t, ok)
}

func TestController_TickAdvancesFromBaseline(t *testing.T) {
	// GIVEN: 1000 at 2.5%/day started Monday 09:00 (25.00 per business day)
	// AND: the server reports 3.13 at 12:00 (three hours accrued)
	h := newTestController(t, at(3, 12, 0))
	d := activeDeposit("d1", "1000", "2.5", at(3, 9, 0))
	h.src.On("GetOverview", mock.Anything, generic.UserID("u1")).Return(overview("3.13", d), nil).Once()

	require.NoError(t, h.ctl.Sync(context.Background()))
	assert.Equal(t, StateSynced, h.ctl.State())
	assertMoney(t, "3.13", h.ctl.DisplayedNetProfit())

	// WHEN: a tick lands at the sync instant
	// THEN: nothing is double-counted
	assertMoney(t, "3.13", h.ctl.Tick())
	assert.Equal(t, StateTicking, h.ctl.State())

	// WHEN: an hour passes
	h.clock.Set(at(3, 13, 0))
	// THEN: the display equals what a fresh sync would report (4.17)
	assertMoney(t, "4.17", h.ctl.Tick())
	assertMoney(t, "4.17", h.ctl.DisplayedNetProfit())
	h.src.AssertExpectations(t)
}

func TestController_IDlessTwinsKeepSeparateBaselines(t *testing.T) {
	// GIVEN: two ID-less deposits sharing start and principal but not rate
	h := newTestController(t, at(3, 12, 0))
	slow := activeDeposit("", "1000", "3", at(3, 9, 0))
	fast := activeDeposit("", "1000", "7", at(3, 9, 0))
	require.Equal(t, slow.Key(), fast.Key())
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("100", slow, fast), nil).Once()
	require.NoError(t, h.ctl.Sync(context.Background()))

	// WHEN: a tick lands at the sync instant
	// THEN: the display stays on the server figure
	assertMoney(t, "100", h.ctl.Tick())

	// WHEN: an hour passes (3.75 -> 5.00 and 8.75 -> 11.67)
	h.clock.Set(at(3, 13, 0))
	// THEN: each deposit advances from its own baseline
	assertMoney(t, "104.17", h.ctl.Tick())
}

func TestController_TickMatchesFreshSync(t *testing.T) {
	d := activeDeposit("d1", "500", "2.5", at(3, 9, 17))
	calc := plans.NewCalculator(plans.DefaultSchedule(), time.UTC)
	credited := dec("40")

	h := newTestController(t, at(4, 10, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).
		Return(overview(credited.Add(calc.AccruedProfit(d, at(4, 10, 0))).String(), d), nil).Once()
	require.NoError(t, h.ctl.Sync(context.Background()))

	for _, now := range []time.Time{at(4, 10, 1), at(4, 18, 33), at(5, 7, 2), at(6, 23, 59)} {
		h.clock.Set(now)
		fresh := credited.Add(calc.AccruedProfit(d, now))
		got := h.ctl.Tick()
		// per-deposit rounding can drift by at most a cent
		assert.True(t, got.Sub(fresh).Abs().LessThanOrEqual(dec("0.01")), "at %v: tick %s, fresh %s", now, got, fresh)
	}
}

func TestController_WeekendIsFlat(t *testing.T) {
	// GIVEN: a deposit started Friday 09:00, synced Friday 23:00
	h := newTestController(t, at(7, 23, 0))
	d := activeDeposit("d1", "1000", "2.5", at(7, 9, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("14.58", d), nil).Once()
	require.NoError(t, h.ctl.Sync(context.Background()))

	// THEN: everything from Saturday 00:00 to Monday 00:00 shows the Friday close
	h.clock.Set(at(8, 12, 0))
	saturday := h.ctl.Tick()
	h.clock.Set(at(9, 20, 0))
	sunday := h.ctl.Tick()
	h.clock.Set(at(10, 0, 0))
	monday := h.ctl.Tick()

	assertMoney(t, "15.63", saturday)
	assert.True(t, saturday.Equal(sunday))
	assert.True(t, sunday.Equal(monday))
}

func TestController_FailedSyncKeepsBaseline(t *testing.T) {
	var hookErr error
	h := newTestController(t, at(3, 12, 0), WithOnSyncError(func(err error) { hookErr = err }))
	d := activeDeposit("d1", "1000", "2.5", at(3, 9, 0))
	outage := errors.New("connection refused")

	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("3.13", d), nil).Once()
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(OverviewPayload{}, outage).Once()

	require.NoError(t, h.ctl.Sync(context.Background()))

	// WHEN: the next sync fails
	h.clock.Set(at(3, 13, 0))
	err := h.ctl.Sync(context.Background())

	// THEN: the error is recorded and reported
	require.ErrorIs(t, err, outage)
	assert.ErrorIs(t, h.ctl.LastSyncError(), outage)
	assert.ErrorIs(t, hookErr, outage)

	// AND: ticks keep advancing from the old baseline
	assertMoney(t, "4.17", h.ctl.Tick())
	snap, ok := h.ctl.Snapshot()
	require.True(t, ok)
	assert.Equal(t, at(3, 12, 0), snap.TakenAt)
}

func TestController_EmptyPayloadIsASyncFailure(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(OverviewPayload{}, nil).Once()

	err := h.ctl.Sync(context.Background())
	assert.ErrorIs(t, err, generic.ErrEmptyOverview)
	assert.Equal(t, StateUninitialized, h.ctl.State())
}

func TestController_DisplayFloorsAtZero(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("-10"), nil).Once()

	require.NoError(t, h.ctl.Sync(context.Background()))
	assertMoney(t, "0", h.ctl.Tick())
}

func TestController_InactiveDepositsDoNotTick(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))
	pending := activeDeposit("p1", "1000", "2.5", at(3, 9, 0))
	pending.Status = plans.StatusPending
	undated := activeDeposit("u1", "1000", "2.5", at(3, 9, 0))
	undated.StartDate = nil
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("7.00", pending, undated), nil).Once()

	require.NoError(t, h.ctl.Sync(context.Background()))
	h.clock.Set(at(4, 12, 0))
	assertMoney(t, "7.00", h.ctl.Tick())
}

func TestController_Totals(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))
	p := overview("20.00")
	p.Body.Capital = FlexDecimal{Decimal: dec("1000"), Set: true}
	p.Body.ReferralEarnings = FlexDecimal{Decimal: dec("5.50"), Set: true}
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(p, nil).Once()

	require.NoError(t, h.ctl.Sync(context.Background()))
	assertMoney(t, "5.50", h.ctl.ReferralEarnings())
	assertMoney(t, "25.50", h.ctl.AvailableWithdrawal())
	assertMoney(t, "1025.50", h.ctl.TotalPortfolio())
}

func TestController_Countdown(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))
	older := activeDeposit("a", "100", "2.5", at(3, 9, 0))
	newer := activeDeposit("b", "100", "2.5", at(3, 11, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("0", older, newer), nil).Once()

	_, ok := h.ctl.Countdown()
	assert.False(t, ok)

	require.NoError(t, h.ctl.Sync(context.Background()))
	left, ok := h.ctl.Countdown()
	require.True(t, ok)
	assert.Equal(t, 60*24*time.Hour-time.Hour, left)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestController_StartSchedulesTickAndSync(t *testing.T) {
	ticks := 0
	h := newTestController(t, at(3, 12, 0), WithOnTick(func(decimal.Decimal) { ticks++ }))
	d := activeDeposit("d1", "1000", "2.5", at(3, 9, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("3.13", d), nil)

	require.NoError(t, h.ctl.Start(context.Background()))
	h.src.AssertNumberOfCalls(t, "GetOverview", 1)
	assert.Equal(t, 2, h.sched.Tasks())

	h.sched.Advance(3 * time.Second)
	assert.Equal(t, 3, ticks)
	h.src.AssertNumberOfCalls(t, "GetOverview", 1)

	h.sched.Advance(5*time.Minute - 3*time.Second)
	assert.Equal(t, 300, ticks)
	h.src.AssertNumberOfCalls(t, "GetOverview", 2)
}

func TestController_StopCancelsSchedules(t *testing.T) {
	ticks := 0
	h := newTestController(t, at(3, 12, 0), WithOnTick(func(decimal.Decimal) { ticks++ }))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("1.00"), nil)

	require.NoError(t, h.ctl.Start(context.Background()))
	h.sched.Advance(2 * time.Second)
	require.Equal(t, 2, ticks)

	h.ctl.Stop()
	assert.Equal(t, 0, h.sched.Tasks())
	assert.Equal(t, StateUninitialized, h.ctl.State())
	assertMoney(t, "0", h.ctl.DisplayedNetProfit())

	h.sched.Advance(10 * time.Minute)
	assert.Equal(t, 2, ticks)
	h.src.AssertNumberOfCalls(t, "GetOverview", 1)
}

func TestController_StartWithFailingSyncStillSchedules(t *testing.T) {
	h := newTestController(t, at(3, 12, 0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(OverviewPayload{}, errors.New("down")).Once()
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("2.00"), nil)

	err := h.ctl.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchedule)
	assert.Equal(t, 2, h.sched.Tasks())

	// the next sync slot retries
	h.sched.Advance(DefaultSyncInterval)
	assert.NoError(t, h.ctl.LastSyncError())
	assertMoney(t, "2.00", h.ctl.DisplayedNetProfit())
}

func TestController_StartReportsSchedulingFailure(t *testing.T) {
	h := newTestController(t, at(3, 12, 0), WithTickInterval(0))
	h.src.On("GetOverview", mock.Anything, mock.Anything).Return(overview("1.00"), nil)

	err := h.ctl.Start(context.Background())
	require.ErrorIs(t, err, ErrSchedule)

	// the controller stopped itself
	assert.Equal(t, StateUninitialized, h.ctl.State())
	assert.Equal(t, 0, h.sched.Tasks())
	_, ok := h.ctl.Snapshot()
	assert.False(t, ok)
}

// =============================================================================
// SCHEDULERS
// =============================================================================

func TestManualScheduler_FiresInTimeOrder(t *testing.T) {
	clock := NewManualClock(at(3, 0, 0))
	s := NewManualScheduler(clock)
	var fired []string
	require.NoError(t, s.Every(2*time.Second, func() { fired = append(fired, "two@"+clock.Now().Format("05")) }))
	require.NoError(t, s.Every(3*time.Second, func() { fired = append(fired, "three@"+clock.Now().Format("05")) }))
	assert.Error(t, s.Every(0, func() {}))

	s.Advance(time.Second)
	assert.Empty(t, fired, "not started")

	s.Start()
	s.Advance(6 * time.Second)
	assert.Equal(t, []string{"two@03", "three@04", "two@05", "two@07", "three@07"}, fired)
	assert.Equal(t, at(3, 0, 0).Add(7*time.Second), clock.Now())
}

func TestCronScheduler_RejectsSubSecondInterval(t *testing.T) {
	s := NewCronScheduler(nil)
	assert.Error(t, s.Every(500*time.Millisecond, func() {}))
	assert.NoError(t, s.Every(time.Second, func() {}))
	s.Start()
	s.Stop()
}

type blockingSource struct {
	calls   atomic.Int32
	blocked chan struct{}
}

// GetOverview answers the first call and blocks every later one until ctx ends.
func (s *blockingSource) GetOverview(ctx context.Context, _ generic.UserID) (OverviewPayload, error) {
	n := s.calls.Add(1)
	if n == 1 {
		return overview("1.00"), nil
	}
	if n == 2 {
		close(s.blocked)
	}
	<-ctx.Done()
	return OverviewPayload{}, ctx.Err()
}

func TestController_CronTicksRunWhileSyncBlocks(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the wall clock")
	}
	// GIVEN: a cron-backed controller whose second sync hangs
	src := &blockingSource{blocked: make(chan struct{})}
	var ticks atomic.Int32
	ctl := NewController(src, "u1", plans.NewCalculator(plans.DefaultSchedule(), time.UTC),
		WithScheduler(NewCronScheduler(cron.DiscardLogger)),
		WithLogger(log.New(io.Discard, "", 0)),
		WithTickInterval(time.Second),
		WithSyncInterval(time.Second),
		WithOnTick(func(decimal.Decimal) { ticks.Add(1) }),
	)
	require.NoError(t, ctl.Start(context.Background()))

	select {
	case <-src.blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled sync never ran")
	}

	// THEN: ticks keep coming while the sync is stuck
	during := ticks.Load()
	require.Eventually(t, func() bool { return ticks.Load() >= during+2 }, 5*time.Second, 50*time.Millisecond)
	assert.EqualValues(t, 2, src.calls.Load(), "overlapping syncs are skipped")

	// WHEN: the controller stops (cancelling the stuck sync)
	ctl.Stop()
	stopped := ticks.Load()
	assert.Equal(t, StateUninitialized, ctl.State())

	// THEN: no task runs again
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load())
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestNormalize_OverviewShape(t *testing.T) {
	raw := `{"overview":{"capital":1000,"netProfit":"12.5","referralEarnings":3,
		"deposits":[{"_id":"d1","amount":1000,"ratePercent":2.5,"startDate":"2025-03-03T09:00:00Z","status":"active"}]}}`

	var p OverviewPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, PayloadOverview, p.Kind)

	snap, err := Normalize(p, at(3, 12, 0))
	require.NoError(t, err)
	assertMoney(t, "1000", snap.Capital)
	assertMoney(t, "12.5", snap.NetProfit)
	assertMoney(t, "3", snap.ReferralEarnings)
	require.Len(t, snap.Deposits, 1)

	d := snap.Deposits[0]
	assert.Equal(t, generic.DepositID("d1"), d.ID)
	assert.True(t, d.RatePercent.Valid)
	assert.Equal(t, at(3, 9, 0), *d.StartDate)
	assert.True(t, d.IsActive())
}

func TestNormalize_UserFallbackShape(t *testing.T) {
	raw := `{"user":{"netProfit":5,"deposits":[
		{"id":"d2","capital":"200","approvedAt":"not a date","status":"ACTIVE"},
		{"id":"d3","capital":"300","approvedAt":"2025-03-03","status":"active"}]}}`

	var p OverviewPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, PayloadUser, p.Kind)

	snap, err := Normalize(p, at(3, 12, 0))
	require.NoError(t, err)
	require.Len(t, snap.Deposits, 2)

	// unparseable timestamp leaves the deposit inert
	assert.Nil(t, snap.Deposits[0].Start())
	assert.False(t, snap.Deposits[0].IsActive())
	assertMoney(t, "200", snap.Deposits[0].Principal)

	// capital is derived from active deposits when absent
	assertMoney(t, "300", snap.Capital)
	assertMoney(t, "0", snap.ReferralEarnings)
}

func TestNormalize_EmptyPayload(t *testing.T) {
	var p OverviewPayload
	require.NoError(t, json.Unmarshal([]byte(`{"overview":null}`), &p))

	_, err := Normalize(p, at(3, 12, 0))
	assert.ErrorIs(t, err, generic.ErrEmptyOverview)
}

func TestNormalize_ZonelessTimesUseSnapshotLocation(t *testing.T) {
	joburg := time.FixedZone("SAST", 2*60*60)
	raw := `{"overview":{"deposits":[
		{"id":"d1","amount":100,"startDate":"2025-03-03T09:00:00","status":"active"},
		{"id":"d2","amount":100,"startDate":"2025-03-03T09:00:00Z","status":"active"}]}}`

	var p OverviewPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	snap, err := Normalize(p, at(3, 12, 0).In(joburg))
	require.NoError(t, err)
	require.Len(t, snap.Deposits, 2)

	// zone-less: 09:00 wall clock in the snapshot's location
	assert.True(t, snap.Deposits[0].StartDate.Equal(time.Date(2025, time.March, 3, 9, 0, 0, 0, joburg)))
	// explicit zone wins
	assert.True(t, snap.Deposits[1].StartDate.Equal(at(3, 9, 0)))
}

func TestNormalize_RejectsBadNumbers(t *testing.T) {
	var p OverviewPayload
	err := json.Unmarshal([]byte(`{"overview":{"netProfit":"twelve"}}`), &p)
	assert.Error(t, err)
}

func TestOverviewPayload_RoundTripKeepsShape(t *testing.T) {
	p := overview("1.00", activeDeposit("d1", "100", "2", at(3, 9, 0)))
	p.Kind = PayloadUser

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user"`)

	var back OverviewPayload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, PayloadUser, back.Kind)
	require.Len(t, back.Body.Deposits, 1)
	assert.Equal(t, "d1", back.Body.Deposits[0].ID)
}
