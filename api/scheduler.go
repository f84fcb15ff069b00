/*
scheduler.go - Automated maturity scheduler

PURPOSE:
  Periodically closes deposits whose accrual window has ended (60 calendar
  days after start, or an earlier explicit end date) and credits their
  profit to the owner's net profit.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Only active deposits are considered, so closed ones are never credited twice
  - Records a maturity run per deposit for audit and UI display

CREDITING:
  The credited amount is AccruedProfit at the end of the accrual window,
  the same figure the overview already showed for the active deposit. The
  overview total is therefore unchanged by closing.

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewMaturityScheduler(store, calc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessMaturities endpoint (manual trigger)
  - plans/accrual.go: AccrualEnd, FullTermProfit
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/plans"
)

// MaturityScheduler handles automated deposit closing.
type MaturityScheduler struct {
	Store         plans.Store
	Calc          *plans.Calculator
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex // serializes passes between ticker and RunNow
}

// MaturitySummary reports one pass.
type MaturitySummary struct {
	Processed int
	Failed    int
	Credited  decimal.Decimal
}

// NewMaturityScheduler creates a new scheduler.
func NewMaturityScheduler(store plans.Store, calc *plans.Calculator) *MaturityScheduler {
	return &MaturityScheduler{
		Store:         store,
		Calc:          calc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (ms *MaturityScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if ms.ticker != nil {
		return
	}

	ms.ticker = time.NewTicker(ms.CheckInterval)
	ms.stop = make(chan struct{})
	ms.wg.Add(1)

	go ms.run(ms.ticker, ms.stop)

	log.Printf("[Scheduler] Started with check interval: %v", ms.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight pass.
func (ms *MaturityScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		ms.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (ms *MaturityScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ms.wg.Done()

	ms.checkAndProcess()

	for {
		select {
		case <-ticker.C:
			ms.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (ms *MaturityScheduler) checkAndProcess() {
	summary, err := ms.RunNow(context.Background())
	if err != nil {
		log.Printf("[Scheduler] Error listing active deposits: %v", err)
		return
	}
	if summary.Processed > 0 || summary.Failed > 0 {
		log.Printf("[Scheduler] Completed: %d closed, %d failed, %s credited",
			summary.Processed, summary.Failed, summary.Credited.StringFixed(2))
	}
}

// RunNow closes every matured active deposit. Per-deposit failures are
// recorded as failed runs and counted; only a failure to list deposits is
// returned.
func (ms *MaturityScheduler) RunNow(ctx context.Context) (MaturitySummary, error) {
	ms.runMu.Lock()
	defer ms.runMu.Unlock()

	summary := MaturitySummary{Credited: decimal.Zero}
	now := ms.Now()

	active, err := ms.Store.ListDepositsByStatus(ctx, plans.StatusActive)
	if err != nil {
		return summary, err
	}

	for _, d := range active {
		if !ms.Calc.IsMatured(d, now) {
			continue
		}
		profit, err := ms.closeDeposit(ctx, d)
		if err != nil {
			log.Printf("[Scheduler] Error closing deposit %s: %v", d.ID, err)
			summary.Failed++
			continue
		}
		summary.Processed++
		summary.Credited = summary.Credited.Add(profit)
	}
	return summary, nil
}

func (ms *MaturityScheduler) closeDeposit(ctx context.Context, d plans.Deposit) (decimal.Decimal, error) {
	run := plans.MaturityRun{
		ID:        uuid.NewString(),
		DepositID: d.ID,
		UserID:    d.UserID,
		Status:    plans.RunRunning,
		StartedAt: ms.Now(),
	}
	if err := ms.Store.SaveMaturityRun(ctx, run); err != nil {
		return decimal.Zero, fmt.Errorf("failed to save run record: %w", err)
	}

	end := ms.Calc.AccrualEnd(d)
	profit := ms.Calc.FullTermProfit(d)
	d.EndDate = end

	if err := ms.Store.CloseDeposit(ctx, d, profit); err != nil {
		run.Status = plans.RunFailed
		run.Error = err.Error()
		if saveErr := ms.Store.SaveMaturityRun(ctx, run); saveErr != nil {
			log.Printf("[Scheduler] Error recording failed run %s for deposit %s: %v", run.ID, d.ID, saveErr)
		}
		return decimal.Zero, err
	}

	completed := ms.Now()
	run.Status = plans.RunCompleted
	run.Profit = profit
	run.CompletedAt = &completed
	if err := ms.Store.SaveMaturityRun(ctx, run); err != nil {
		return profit, fmt.Errorf("failed to update run record: %w", err)
	}

	log.Printf("[Scheduler] Closed deposit %s for user %s: profit=%s", d.ID, d.UserID, profit.StringFixed(2))
	return profit, nil
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ms *MaturityScheduler) GetNextRunTime() time.Time {
	return ms.Now().Add(ms.CheckInterval)
}
