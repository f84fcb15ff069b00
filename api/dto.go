/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMAT:
  Field names are camelCase because the overview contract consumed by the
  live ticker uses them (capital, netProfit, referralEarnings, deposits).
  Deposits are serialized with live.DepositJSON so the backend and the
  client share one encoding. Money is a decimal string.

TYPES:
  User:        UserDTO, CreateUserRequest
  Deposit:     DepositDTO, CreateDepositRequest
  Plans:       PlanDTO, ProjectionDTO
  Maturity:    MaturityRunDTO, MaturitySummaryDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - live/snapshot.go: DepositJSON and the overview payload
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/live"
	"github.com/warp/yield-engine/plans"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	NetProfit        string `json:"netProfit"`
	ReferralEarnings string `json:"referralEarnings"`
	CreatedAt        string `json:"createdAt,omitempty"`
}

// CreateUserRequest is the request to create a user.
type CreateUserRequest struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Role             string           `json:"role"`
	ReferralEarnings live.FlexDecimal `json:"referralEarnings"`
}

func toUserDTO(u plans.User) UserDTO {
	dto := UserDTO{
		ID:               string(u.ID),
		Name:             u.Name,
		Email:            u.Email,
		Role:             string(u.Role),
		NetProfit:        money(u.NetProfit),
		ReferralEarnings: money(u.ReferralEarnings),
	}
	if !u.CreatedAt.IsZero() {
		dto.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DEPOSITS
// =============================================================================

// DepositDTO is a deposit with its accrual at the time of the request.
type DepositDTO struct {
	live.DepositJSON
	AccruedProfit string `json:"accruedProfit"`
	MaturesAt     string `json:"maturesAt,omitempty"`
}

// CreateDepositRequest opens a pending deposit. PlanName, when set, takes the
// amount from the catalog.
type CreateDepositRequest struct {
	Amount   live.FlexDecimal `json:"amount"`
	PlanName string           `json:"planName,omitempty"`
}

// =============================================================================
// PLANS
// =============================================================================

// ProjectionDTO is the up-front economics of a principal.
type ProjectionDTO struct {
	Principal   string `json:"principal"`
	RatePercent string `json:"ratePercent"`
	Days        int    `json:"days"`
	DailyProfit string `json:"dailyProfit"`
	AccrualDays int    `json:"accrualDays"`
	TotalProfit string `json:"totalProfit"`
	TotalPayout string `json:"totalPayout"`
}

// PlanDTO is a catalog plan with its projection.
type PlanDTO struct {
	Name string `json:"name"`
	ProjectionDTO
}

func toProjectionDTO(principal, rate decimal.Decimal, days int, p plans.Projection) ProjectionDTO {
	return ProjectionDTO{
		Principal:   money(principal),
		RatePercent: rate.String(),
		Days:        days,
		DailyProfit: money(p.DailyProfit),
		AccrualDays: p.AccrualDays,
		TotalProfit: money(p.TotalProfit),
		TotalPayout: money(p.TotalPayout),
	}
}

func toPlanDTO(q plans.Quote) PlanDTO {
	return PlanDTO{
		Name:          q.Plan.Name,
		ProjectionDTO: toProjectionDTO(q.Plan.Amount, q.Plan.RatePercent, q.Plan.Days, q.Projection),
	}
}

// =============================================================================
// MATURITY
// =============================================================================

// MaturityRunDTO represents one deposit closing.
type MaturityRunDTO struct {
	ID          string  `json:"id"`
	DepositID   string  `json:"depositId"`
	UserID      string  `json:"userId"`
	Profit      string  `json:"profit"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"startedAt"`
	CompletedAt *string `json:"completedAt,omitempty"`
}

func toMaturityRunDTO(r plans.MaturityRun) MaturityRunDTO {
	dto := MaturityRunDTO{
		ID:        r.ID,
		DepositID: string(r.DepositID),
		UserID:    string(r.UserID),
		Profit:    money(r.Profit),
		Status:    string(r.Status),
		Error:     r.Error,
		StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.UTC().Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

// MaturitySummaryDTO reports one maturity pass.
type MaturitySummaryDTO struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Credited  string `json:"credited"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
