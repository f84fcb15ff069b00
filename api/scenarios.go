/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates an admin, one investor
	and a set of deposits that demonstrate specific features.

AVAILABLE SCENARIOS:

	new-investor:      One pending Plan F deposit awaiting approval
	active-portfolio:  Two running deposits, credited profit and referral earnings
	matured-deposit:   A deposit past its 60-day window, ready for the maturity pass
	historical-rate:   A deposit carrying a rate the schedule no longer offers

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the admin and the investor
 3. Create deposits with start dates relative to now

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "active-portfolio"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Deposit and overview endpoints
  - scheduler.go: Maturity pass used by matured-deposit
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Fixed IDs so demos and the ticker can address scenario users directly.
const (
	ScenarioAdminID    generic.UserID = "admin"
	ScenarioInvestorID generic.UserID = "investor-1"
)

var scenarios = []ScenarioDTO{
	{
		ID:          "new-investor",
		Name:        "New Investor",
		Description: "Plan F deposit pending admin approval",
	},
	{
		ID:          "active-portfolio",
		Name:        "Active Portfolio",
		Description: "Two running deposits with credited profit and referral earnings",
	},
	{
		ID:          "matured-deposit",
		Name:        "Matured Deposit",
		Description: "A deposit past its 60-day window, closed by the maturity pass",
	},
	{
		ID:          "historical-rate",
		Name:        "Historical Rate",
		Description: "A deposit keeps the rate it was opened at after the schedule changed",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(ctx context.Context, now time.Time) error
	switch req.ScenarioID {
	case "new-investor":
		load = h.loadNewInvestorScenario
	case "active-portfolio":
		load = h.loadActivePortfolioScenario
	case "matured-deposit":
		load = h.loadMaturedDepositScenario
	case "historical-rate":
		load = h.loadHistoricalRateScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx, h.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return h.Store.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewInvestorScenario(ctx context.Context, now time.Time) error {
	if err := h.seedUsers(ctx, now, decimal.Zero, decimal.Zero); err != nil {
		return err
	}
	plan, ok := h.findPlan("F")
	if !ok {
		plan = h.Catalog[0]
	}
	return h.seedDeposit(ctx, "dep-pending", plan.Amount, nil, plans.StatusPending, now)
}

func (h *Handler) loadActivePortfolioScenario(ctx context.Context, now time.Time) error {
	if err := h.seedUsers(ctx, now, decimal.RequireFromString("12.00"), decimal.RequireFromString("25.00")); err != nil {
		return err
	}
	tenDaysAgo := now.AddDate(0, 0, -10)
	threeDaysAgo := now.AddDate(0, 0, -3)
	if err := h.seedDeposit(ctx, "dep-1000", decimal.NewFromInt(1000), &tenDaysAgo, plans.StatusActive, tenDaysAgo); err != nil {
		return err
	}
	if err := h.seedDeposit(ctx, "dep-200", decimal.NewFromInt(200), &threeDaysAgo, plans.StatusActive, threeDaysAgo); err != nil {
		return err
	}
	return h.seedDeposit(ctx, "dep-pending", decimal.NewFromInt(50), nil, plans.StatusPending, now)
}

func (h *Handler) loadMaturedDepositScenario(ctx context.Context, now time.Time) error {
	if err := h.seedUsers(ctx, now, decimal.Zero, decimal.Zero); err != nil {
		return err
	}
	matured := now.AddDate(0, 0, -(plans.CapDays + 1))
	running := now.AddDate(0, 0, -30)
	if err := h.seedDeposit(ctx, "dep-matured", decimal.NewFromInt(500), &matured, plans.StatusActive, matured); err != nil {
		return err
	}
	return h.seedDeposit(ctx, "dep-running", decimal.NewFromInt(500), &running, plans.StatusActive, running)
}

func (h *Handler) loadHistoricalRateScenario(ctx context.Context, now time.Time) error {
	if err := h.seedUsers(ctx, now, decimal.Zero, decimal.Zero); err != nil {
		return err
	}
	start := now.AddDate(0, 0, -7)
	d := plans.Deposit{
		ID:          "dep-legacy",
		UserID:      ScenarioInvestorID,
		Principal:   decimal.NewFromInt(1000),
		RatePercent: decimal.NewNullDecimal(decimal.NewFromInt(5)),
		StartDate:   &start,
		ApprovedAt:  &start,
		Status:      plans.StatusActive,
		CreatedAt:   start,
	}
	return h.Store.SaveDeposit(ctx, d)
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (h *Handler) seedUsers(ctx context.Context, now time.Time, credited, referral decimal.Decimal) error {
	users := []plans.User{
		{ID: ScenarioAdminID, Name: "Admin", Email: "admin@example.com", Role: generic.RoleAdmin, CreatedAt: now},
		{
			ID:               ScenarioInvestorID,
			Name:             "Thandi Investor",
			Email:            "thandi@example.com",
			Role:             generic.RoleInvestor,
			NetProfit:        credited,
			ReferralEarnings: referral,
			CreatedAt:        now,
		},
	}
	for _, u := range users {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return nil
}

func (h *Handler) seedDeposit(ctx context.Context, id string, principal decimal.Decimal, start *time.Time, status plans.DepositStatus, created time.Time) error {
	d := plans.Deposit{
		ID:          generic.DepositID(id),
		UserID:      ScenarioInvestorID,
		Principal:   principal,
		RatePercent: decimal.NewNullDecimal(h.Calc.Schedule.RateFor(principal)),
		StartDate:   start,
		ApprovedAt:  start,
		Status:      status,
		CreatedAt:   created,
	}
	if err := h.Store.SaveDeposit(ctx, d); err != nil {
		return fmt.Errorf("seed deposit %s: %w", id, err)
	}
	return nil
}
