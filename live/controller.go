/*
controller.go - Live reconciliation controller

PURPOSE:
  Keeps a displayed net-profit figure that advances every second while
  staying anchored to the server. Two periodic tasks share one baseline:

    sync (every 5 minutes): fetch the overview, record netProfit and the
                            accrual of every deposit at the fetch instant
    tick (every second):    netProfit + sum over active deposits of
                            (accrued now - accrued at baseline)

  The figure a tick publishes never double-counts accrual the server already
  folded into netProfit, and it always agrees with the next sync up to cent
  rounding.

CONCURRENCY:
  The baseline is one immutable value behind an atomic pointer. A sync builds
  a complete new baseline and stores it; a tick loads it once. A tick can
  therefore never see a new netProfit paired with old per-deposit figures.
  A slow sync never delays ticks: each task runs on its own goroutine.

FAILURES:
  A failed sync keeps the previous baseline; ticks continue from it and the
  next scheduled sync retries. Before the first successful sync, ticks
  publish zero.

LIFECYCLE:
  Uninitialized --Sync ok--> Synced --Tick--> Ticking
  Ticking --Sync ok--> Synced
  any --Stop--> Uninitialized

SEE ALSO:
  - snapshot.go: Snapshot and payload normalization
  - scheduler.go: Cron-backed and manual schedulers
  - plans/accrual.go: AccruedProfit
*/
package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

const (
	DefaultTickInterval = time.Second
	DefaultSyncInterval = 5 * time.Minute
)

// ErrSchedule is returned by Start when the periodic tasks could not be
// registered. The controller is stopped when it is returned.
var ErrSchedule = errors.New("schedule live tasks")

// OverviewSource fetches the authoritative overview for a user.
type OverviewSource interface {
	GetOverview(ctx context.Context, userID generic.UserID) (OverviewPayload, error)
}

// State is the controller lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateSynced
	StateTicking
)

func (s State) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StateTicking:
		return "ticking"
	}
	return "uninitialized"
}

// baseline is the state captured at one successful sync. perDeposit[i] is
// the accrual of snapshot.Deposits[i] at snapshot.TakenAt.
type baseline struct {
	snapshot   Snapshot
	perDeposit []decimal.Decimal
}

// Controller reconciles a server snapshot with a per-second live counter.
type Controller struct {
	source OverviewSource
	userID generic.UserID
	calc   *plans.Calculator

	clock        Clock
	scheduler    Scheduler
	tickInterval time.Duration
	syncInterval time.Duration
	onTick       func(decimal.Decimal)
	onSyncError  func(error)
	logger       *log.Logger

	base      atomic.Pointer[baseline]
	displayed atomic.Pointer[decimal.Decimal]
	state     atomic.Int32

	mu       sync.Mutex // guards lastErr and running
	lastErr  error
	running  bool
	stopSync context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c Clock) Option { return func(ctl *Controller) { ctl.clock = c } }

func WithScheduler(s Scheduler) Option { return func(ctl *Controller) { ctl.scheduler = s } }

func WithTickInterval(d time.Duration) Option {
	return func(ctl *Controller) { ctl.tickInterval = d }
}

func WithSyncInterval(d time.Duration) Option {
	return func(ctl *Controller) { ctl.syncInterval = d }
}

// WithOnTick registers a callback receiving every published figure.
func WithOnTick(fn func(decimal.Decimal)) Option {
	return func(ctl *Controller) { ctl.onTick = fn }
}

// WithOnSyncError registers a callback receiving every sync failure.
func WithOnSyncError(fn func(error)) Option {
	return func(ctl *Controller) { ctl.onSyncError = fn }
}

func WithLogger(l *log.Logger) Option { return func(ctl *Controller) { ctl.logger = l } }

// NewController creates a controller for one user. Without options it uses
// the wall clock, a cron scheduler, a 1s tick and a 5m sync.
func NewController(source OverviewSource, userID generic.UserID, calc *plans.Calculator, opts ...Option) *Controller {
	c := &Controller{
		source:       source,
		userID:       userID,
		calc:         calc,
		clock:        SystemClock,
		tickInterval: DefaultTickInterval,
		syncInterval: DefaultSyncInterval,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = NewCronScheduler(nil)
	}
	zero := decimal.Zero
	c.displayed.Store(&zero)
	return c
}

// =============================================================================
// SYNC & TICK
// =============================================================================

// Sync fetches a fresh overview and replaces the baseline. On failure the
// previous baseline stays in place.
func (c *Controller) Sync(ctx context.Context) error {
	payload, err := c.source.GetOverview(ctx, c.userID)
	if err == nil {
		var snap Snapshot
		snap, err = Normalize(payload, c.clock.Now().In(c.location()))
		if err == nil {
			c.publishBaseline(snap)
			c.setLastErr(nil)
			return nil
		}
	}

	err = fmt.Errorf("sync overview for user %s: %w", c.userID, err)
	c.setLastErr(err)
	if c.onSyncError != nil {
		c.onSyncError(err)
	}
	return err
}

func (c *Controller) publishBaseline(snap Snapshot) {
	per := make([]decimal.Decimal, len(snap.Deposits))
	for i, d := range snap.Deposits {
		per[i] = c.calc.AccruedProfit(d, snap.TakenAt)
	}
	c.base.Store(&baseline{snapshot: snap, perDeposit: per})

	shown := generic.MaxZero(generic.RoundCents(snap.NetProfit))
	c.displayed.Store(&shown)
	c.state.Store(int32(StateSynced))
}

// Tick recomputes and publishes the displayed net profit at the clock's now.
func (c *Controller) Tick() decimal.Decimal {
	b := c.base.Load()
	if b == nil {
		return decimal.Zero
	}

	now := c.clock.Now()
	delta := decimal.Zero
	for i, d := range b.snapshot.Deposits {
		if !d.IsActive() {
			continue
		}
		delta = delta.Add(c.calc.AccruedProfit(d, now).Sub(b.perDeposit[i]))
	}

	shown := generic.MaxZero(generic.RoundCents(b.snapshot.NetProfit.Add(delta)))
	// a concurrent Stop or Sync may have replaced the baseline meanwhile
	if c.base.Load() != b {
		return shown
	}
	c.displayed.Store(&shown)
	c.state.CompareAndSwap(int32(StateSynced), int32(StateTicking))
	if c.onTick != nil {
		c.onTick(shown)
	}
	return shown
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start runs one sync immediately, then schedules ticks and periodic syncs.
// A failed initial sync is returned but the schedules still start, so the
// next sync slot retries. A scheduling failure wraps ErrSchedule.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	syncCtx, cancel := context.WithCancel(ctx)
	c.stopSync = cancel
	c.mu.Unlock()

	firstErr := c.Sync(syncCtx)
	if firstErr != nil {
		c.logger.Printf("[Live] initial sync failed: %v", firstErr)
	}

	if err := c.scheduler.Every(c.tickInterval, func() { c.Tick() }); err != nil {
		c.Stop()
		return fmt.Errorf("%w: tick: %w", ErrSchedule, err)
	}
	if err := c.scheduler.Every(c.syncInterval, func() {
		if err := c.Sync(syncCtx); err != nil {
			c.logger.Printf("[Live] sync failed, keeping previous baseline: %v", err)
		}
	}); err != nil {
		c.Stop()
		return fmt.Errorf("%w: sync: %w", ErrSchedule, err)
	}
	c.scheduler.Start()
	c.logger.Printf("[Live] started for user %s (tick=%v, sync=%v)", c.userID, c.tickInterval, c.syncInterval)
	return firstErr
}

// Stop cancels both schedules and drops the baseline.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.stopSync
	c.stopSync = nil
	c.mu.Unlock()

	cancel()
	c.scheduler.Stop()
	c.base.Store(nil)
	zero := decimal.Zero
	c.displayed.Store(&zero)
	c.state.Store(int32(StateUninitialized))
	c.logger.Printf("[Live] stopped for user %s", c.userID)
}

// =============================================================================
// READ SIDE
// =============================================================================

func (c *Controller) State() State { return State(c.state.Load()) }

// DisplayedNetProfit is the last published figure.
func (c *Controller) DisplayedNetProfit() decimal.Decimal { return *c.displayed.Load() }

// Snapshot returns the current baseline snapshot, if any.
func (c *Controller) Snapshot() (Snapshot, bool) {
	b := c.base.Load()
	if b == nil {
		return Snapshot{}, false
	}
	return b.snapshot, true
}

func (c *Controller) ReferralEarnings() decimal.Decimal {
	if b := c.base.Load(); b != nil {
		return b.snapshot.ReferralEarnings
	}
	return decimal.Zero
}

// AvailableWithdrawal is displayed net profit plus referral earnings.
func (c *Controller) AvailableWithdrawal() decimal.Decimal {
	return c.DisplayedNetProfit().Add(c.ReferralEarnings())
}

// TotalPortfolio is capital plus displayed net profit plus referral earnings.
func (c *Controller) TotalPortfolio() decimal.Decimal {
	capital := decimal.Zero
	if b := c.base.Load(); b != nil {
		capital = b.snapshot.Capital
	}
	return capital.Add(c.AvailableWithdrawal())
}

// Countdown returns the time left on the most recently started active deposit.
func (c *Controller) Countdown() (time.Duration, bool) {
	b := c.base.Load()
	if b == nil {
		return 0, false
	}
	latest, ok := plans.LatestActive(b.snapshot.Deposits)
	if !ok {
		return 0, false
	}
	return plans.Remaining(*latest.Start(), c.clock.Now(), c.location()), true
}

func (c *Controller) location() *time.Location {
	if c.calc.Location == nil {
		return time.UTC
	}
	return c.calc.Location
}

func (c *Controller) LastSyncError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) setLastErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
