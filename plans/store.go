/*
store.go - Persistence interfaces for users, deposits and maturity runs

PURPOSE:
  Defines the interface between the backend and the system of record.
  The calculators never touch a store; only the API handlers and the
  maturity scheduler do.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, schema applied with golang-migrate
  - generic/store/memory.go: In-memory for testing

STATUS CHANGES:
  UpdateDeposit is the only way to move a deposit between statuses. Callers
  check DepositStatus.CanTransition before calling it.

SEE ALSO:
  - api/handlers.go: Uses these interfaces
  - api/scheduler.go: Maturity processing
*/
package plans

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
)

// UserStore persists investor accounts.
type UserStore interface {
	SaveUser(ctx context.Context, u User) error

	// GetUser returns generic.ErrUserNotFound when the user does not exist.
	GetUser(ctx context.Context, id generic.UserID) (*User, error)

	ListUsers(ctx context.Context) ([]User, error)

	// CreditProfit adds delta to the user's credited NetProfit.
	CreditProfit(ctx context.Context, id generic.UserID, delta decimal.Decimal) error
}

// DepositStore persists deposits.
type DepositStore interface {
	// SaveDeposit inserts a new deposit. Returns generic.ErrDuplicateID if the ID exists.
	SaveDeposit(ctx context.Context, d Deposit) error

	// GetDeposit returns generic.ErrDepositNotFound when the deposit does not exist.
	GetDeposit(ctx context.Context, id generic.DepositID) (*Deposit, error)

	// UpdateDeposit overwrites status and dates of an existing deposit.
	UpdateDeposit(ctx context.Context, d Deposit) error

	ListDepositsByUser(ctx context.Context, userID generic.UserID) ([]Deposit, error)
	ListDepositsByStatus(ctx context.Context, status DepositStatus) ([]Deposit, error)
}

// MaturityLog records deposit closings.
type MaturityLog interface {
	SaveMaturityRun(ctx context.Context, run MaturityRun) error
	ListMaturityRuns(ctx context.Context, status RunStatus) ([]MaturityRun, error)
}

// Store is everything the backend needs.
type Store interface {
	UserStore
	DepositStore
	MaturityLog

	// CloseDeposit atomically closes a deposit and credits its profit.
	CloseDeposit(ctx context.Context, d Deposit, profit decimal.Decimal) error

	// Reset removes all data (demo scenarios).
	Reset(ctx context.Context) error
}
