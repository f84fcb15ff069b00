/*
handlers.go - HTTP API handlers for the yield engine backend

PURPOSE:
  Exposes users, deposits, plans and the overview snapshot via REST API.
  Handles HTTP request/response, JSON serialization, and delegates money
  calculations to the plans package.

ENDPOINTS:
  Plans:
    GET    /api/plans                         Catalog with projections
    GET    /api/plans/projection              Project an arbitrary principal
    GET    /api/rates                         Active rate schedule

  Users:
    POST   /api/users                         Create user
    GET    /api/users/{id}                    Get user
    GET    /api/users/{id}/overview           Overview snapshot for the live ticker
    GET    /api/users/{id}/deposits           Deposits with accrual so far
    POST   /api/users/{id}/deposits           Open a pending deposit

  Admin (X-User-Role: admin):
    GET    /api/admin/users                   List users
    GET    /api/admin/deposits?status=        List deposits by status
    POST   /api/admin/deposits/{id}/approve   Activate a pending deposit
    POST   /api/admin/deposits/{id}/reject    Reject a pending deposit
    GET    /api/admin/maturity/runs           Maturity run history
    POST   /api/admin/maturity/process        Close matured deposits now

OVERVIEW CONSISTENCY:
  netProfit in the overview is credited profit plus the accrual of every
  active deposit at request time, computed with the same Calculator the
  live ticker uses. A client's first tick after a sync therefore shows
  exactly the synced figure.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Role check failed
  - 404: Resource not found
  - 409: Conflict (duplicate ID, invalid status transition)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Maturity processing
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/factory"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/live"
	"github.com/warp/yield-engine/plans"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    plans.Store
	Calc     *plans.Calculator
	Catalog  []plans.Plan
	Maturity *MaturityScheduler

	// Now is the handler clock (tests pin it).
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store and calculator.
func NewHandler(store plans.Store, calc *plans.Calculator) *Handler {
	h := &Handler{
		Store:   store,
		Calc:    calc,
		Catalog: plans.Catalog(calc.Schedule),
		Now:     time.Now,
	}
	h.Maturity = NewMaturityScheduler(store, calc)
	h.Maturity.Now = func() time.Time { return h.Now() }
	return h
}

// =============================================================================
// PLAN ENDPOINTS
// =============================================================================

// ListPlans returns the catalog with projections.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	quotes := plans.Quotes(h.Catalog)
	out := make([]PlanDTO, len(quotes))
	for i, q := range quotes {
		out[i] = toPlanDTO(q)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProjection projects ?principal= at ?rate= (default: schedule) for ?days= (default 60).
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	principal, err := decimal.NewFromString(q.Get("principal"))
	if err != nil || !principal.IsPositive() {
		writeError(w, http.StatusBadRequest, "principal must be a positive number", generic.ErrInvalidAmount)
		return
	}

	rate := h.Calc.Schedule.RateFor(principal)
	if s := q.Get("rate"); s != "" {
		rate, err = decimal.NewFromString(s)
		if err != nil || rate.IsNegative() {
			writeError(w, http.StatusBadRequest, "rate must be a non-negative number", err)
			return
		}
	}

	days := plans.DefaultPlanDays
	if s := q.Get("days"); s != "" {
		days, err = strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toProjectionDTO(principal, rate, days, plans.Project(principal, rate, days)))
}

// GetRates returns the active rate schedule.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON("active", h.Calc.Schedule))
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// CreateUser creates a user. Role defaults to investor.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	role := generic.Role(req.Role)
	if role == "" {
		role = generic.RoleInvestor
	}
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role: "+req.Role, nil)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	ctx := r.Context()
	if _, err := h.Store.GetUser(ctx, generic.UserID(id)); err == nil {
		writeError(w, http.StatusConflict, "user already exists", generic.ErrDuplicateID)
		return
	}

	u := plans.User{
		ID:               generic.UserID(id),
		Name:             req.Name,
		Email:            req.Email,
		Role:             role,
		ReferralEarnings: req.ReferralEarnings.Decimal,
		CreatedAt:        h.Now(),
	}
	if err := h.Store.SaveUser(ctx, u); err != nil {
		writeStoreError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// ListUsers returns every user.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, "Failed to list users", err)
		return
	}
	out := make([]UserDTO, len(users))
	for i, u := range users {
		out[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Store.GetUser(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeStoreError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// GetOverview returns {"overview": {...}} for the live ticker.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.Store.GetUser(ctx, generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeStoreError(w, "Failed to get user", err)
		return
	}
	deposits, err := h.Store.ListDepositsByUser(ctx, u.ID)
	if err != nil {
		writeStoreError(w, "Failed to list deposits", err)
		return
	}

	writeJSON(w, http.StatusOK, live.OverviewPayload{
		Kind: live.PayloadOverview,
		Body: h.overview(*u, deposits, h.Now()),
	})
}

func (h *Handler) overview(u plans.User, deposits []plans.Deposit, now time.Time) live.OverviewBody {
	netProfit := generic.RoundCents(u.NetProfit.Add(h.Calc.AccruedTotal(deposits, now)))
	body := live.OverviewBody{
		Capital:          live.FlexDecimal{Decimal: plans.Capital(deposits), Set: true},
		NetProfit:        live.FlexDecimal{Decimal: netProfit, Set: true},
		ReferralEarnings: live.FlexDecimal{Decimal: u.ReferralEarnings, Set: true},
		Deposits:         make([]live.DepositJSON, 0, len(deposits)),
	}
	for _, d := range deposits {
		body.Deposits = append(body.Deposits, live.FromDeposit(d))
	}
	return body
}

// ListUserDeposits returns a user's deposits with accrual so far.
func (h *Handler) ListUserDeposits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := generic.UserID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetUser(ctx, userID); err != nil {
		writeStoreError(w, "Failed to get user", err)
		return
	}
	deposits, err := h.Store.ListDepositsByUser(ctx, userID)
	if err != nil {
		writeStoreError(w, "Failed to list deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDepositDTOs(deposits))
}

func (h *Handler) toDepositDTOs(deposits []plans.Deposit) []DepositDTO {
	now := h.Now()
	out := make([]DepositDTO, len(deposits))
	for i, d := range deposits {
		dto := DepositDTO{DepositJSON: live.FromDeposit(d), AccruedProfit: money(decimal.Zero)}
		if d.Status == plans.StatusActive || d.Status == plans.StatusClosed {
			dto.AccruedProfit = money(h.Calc.AccruedProfit(d, now))
		}
		if end := h.Calc.AccrualEnd(d); end != nil {
			dto.MaturesAt = end.UTC().Format(time.RFC3339)
		}
		out[i] = dto
	}
	return out
}

// CreateDeposit opens a pending deposit with the current schedule rate stamped on it.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount := req.Amount.Decimal
	if req.PlanName != "" {
		plan, ok := h.findPlan(req.PlanName)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown plan: "+req.PlanName, nil)
			return
		}
		amount = plan.Amount
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", generic.ErrInvalidAmount)
		return
	}

	ctx := r.Context()
	userID := generic.UserID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetUser(ctx, userID); err != nil {
		writeStoreError(w, "Failed to get user", err)
		return
	}

	d := plans.Deposit{
		ID:          generic.DepositID(uuid.NewString()),
		UserID:      userID,
		Principal:   amount,
		RatePercent: decimal.NewNullDecimal(h.Calc.Schedule.RateFor(amount)),
		Status:      plans.StatusPending,
		CreatedAt:   h.Now(),
	}
	if err := h.Store.SaveDeposit(ctx, d); err != nil {
		writeStoreError(w, "Failed to create deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toDepositDTOs([]plans.Deposit{d})[0])
}

func (h *Handler) findPlan(name string) (plans.Plan, bool) {
	for _, p := range h.Catalog {
		if strings.EqualFold(p.Name, name) || strings.EqualFold("Plan "+name, p.Name) {
			return p, true
		}
	}
	return plans.Plan{}, false
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ListDeposits returns deposits with ?status= (default pending).
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	status := plans.DepositStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = plans.StatusPending
	}
	deposits, err := h.Store.ListDepositsByStatus(r.Context(), status)
	if err != nil {
		writeStoreError(w, "Failed to list deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDepositDTOs(deposits))
}

// ApproveDeposit activates a pending deposit. Accrual starts now.
func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.transitionDeposit(w, r, plans.StatusActive)
}

// RejectDeposit rejects a pending deposit.
func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.transitionDeposit(w, r, plans.StatusRejected)
}

func (h *Handler) transitionDeposit(w http.ResponseWriter, r *http.Request, next plans.DepositStatus) {
	ctx := r.Context()
	d, err := h.Store.GetDeposit(ctx, generic.DepositID(chi.URLParam(r, "id")))
	if err != nil {
		writeStoreError(w, "Failed to get deposit", err)
		return
	}
	if !d.Status.CanTransition(next) {
		err := &generic.TransitionError{DepositID: d.ID, From: string(d.Status), To: string(next)}
		writeError(w, http.StatusConflict, err.Error(), err)
		return
	}

	d.Status = next
	if next == plans.StatusActive {
		now := h.Now()
		d.ApprovedAt = &now
		d.StartDate = &now
		if !d.RatePercent.Valid {
			d.RatePercent = decimal.NewNullDecimal(h.Calc.Schedule.RateFor(d.Principal))
		}
	}
	if err := h.Store.UpdateDeposit(ctx, *d); err != nil {
		writeStoreError(w, "Failed to update deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDepositDTOs([]plans.Deposit{*d})[0])
}

// ListMaturityRuns returns maturity runs, newest first, filtered by ?status=.
func (h *Handler) ListMaturityRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListMaturityRuns(r.Context(), plans.RunStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeStoreError(w, "Failed to list maturity runs", err)
		return
	}
	out := make([]MaturityRunDTO, len(runs))
	for i, run := range runs {
		out[i] = toMaturityRunDTO(run)
	}
	writeJSON(w, http.StatusOK, out)
}

// ProcessMaturities closes every matured deposit now.
func (h *Handler) ProcessMaturities(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Maturity.RunNow(r.Context())
	if err != nil {
		writeStoreError(w, "Failed to process maturities", err)
		return
	}
	writeJSON(w, http.StatusOK, MaturitySummaryDTO{
		Processed: summary.Processed,
		Failed:    summary.Failed,
		Credited:  money(summary.Credited),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps domain errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, generic.ErrDuplicateID), errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
