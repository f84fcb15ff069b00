/*
Package plans implements the investment-plan economics of the yield engine.

PURPOSE:
  Everything that turns a deposit into money: the rate schedule, the
  up-front plan projection, the business-time accrual calculator, and the
  portfolio helpers used to aggregate active deposits.

KEY CONCEPTS IN THIS FILE (types.go):
  - Deposit: read-only value object owned by the system of record
  - DepositStatus: pending -> active -> closed (or pending -> rejected)
  - DepositKey: correlates a deposit across successive snapshots
  - User: the investor account a deposit belongs to

EFFECTIVE START:
  A deposit's accrual starts at StartDate, falling back to ApprovedAt.
  A deposit with neither is economically inert (accrues zero).

RATE OVERRIDE:
  RatePercent, when valid, pins the rate in effect when the deposit was
  created. The rate schedule is consulted only when it is absent.

SEE ALSO:
  - rates.go: RateSchedule lookup
  - accrual.go: Business-time accrual
  - projection.go: Up-front plan projection
*/
package plans

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
)

// =============================================================================
// DEPOSIT
// =============================================================================

type DepositStatus string

const (
	StatusPending  DepositStatus = "pending"
	StatusActive   DepositStatus = "active"
	StatusClosed   DepositStatus = "closed"
	StatusRejected DepositStatus = "rejected"
)

// CanTransition reports whether a deposit may move from s to next.
func (s DepositStatus) CanTransition(next DepositStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusRejected
	case StatusActive:
		return next == StatusClosed
	}
	return false
}

type Deposit struct {
	ID          generic.DepositID
	UserID      generic.UserID
	Principal   decimal.Decimal
	RatePercent decimal.NullDecimal
	StartDate   *time.Time
	ApprovedAt  *time.Time
	EndDate     *time.Time
	Status      DepositStatus
	CreatedAt   time.Time
}

// Start returns the effective accrual start, or nil when the deposit cannot be dated.
func (d Deposit) Start() *time.Time {
	if d.StartDate != nil && !d.StartDate.IsZero() {
		return d.StartDate
	}
	if d.ApprovedAt != nil && !d.ApprovedAt.IsZero() {
		return d.ApprovedAt
	}
	return nil
}

// IsActive reports whether the deposit counts toward live totals.
func (d Deposit) IsActive() bool {
	return d.Status == StatusActive && d.Start() != nil
}

// Key returns the deposit's correlation key across snapshots.
func (d Deposit) Key() DepositKey {
	if d.ID != "" {
		return DepositKey(d.ID)
	}
	start := ""
	if s := d.Start(); s != nil {
		start = s.UTC().Format(time.RFC3339Nano)
	}
	return DepositKey(start + "|" + d.Principal.String())
}

// DepositKey identifies a deposit across snapshots. Deposits without an ID
// that share start and principal collide, so it is not a persistent identity.
type DepositKey string

// =============================================================================
// USER
// =============================================================================

// User is an investor account as seen by the backend.
// NetProfit holds profit already credited (matured deposits); live accrual
// on active deposits is added on top when building an overview.
type User struct {
	ID               generic.UserID
	Name             string
	Email            string
	Role             generic.Role
	NetProfit        decimal.Decimal
	ReferralEarnings decimal.Decimal
	CreatedAt        time.Time
}

// =============================================================================
// MATURITY RUN
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// MaturityRun records the closing of one deposit at the end of its term.
type MaturityRun struct {
	ID          string
	DepositID   generic.DepositID
	UserID      generic.UserID
	Profit      decimal.Decimal
	Status      RunStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
