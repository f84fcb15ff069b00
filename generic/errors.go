/*
errors.go - Centralized error types for the yield engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - rate schedule missing or malformed
  2. Validation errors - bad client input (amounts, state transitions)
  3. Lookup errors - missing users/deposits
  4. Transport errors - overview snapshot could not be fetched

  A deposit without a start date is NOT an error: it accrues zero.

USAGE:
  if errors.Is(err, generic.ErrDepositNotFound) {
      writeError(w, http.StatusNotFound, "deposit not found", err)
  }

SEE ALSO:
  - store.go: Uses these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptySchedule is returned when a rate schedule has no tiers.
	// This is a setup error; calculators cannot recover from it.
	ErrEmptySchedule = errors.New("rate schedule has no tiers")

	// ErrInvalidTier is returned for a tier with a negative amount or rate.
	ErrInvalidTier = errors.New("invalid rate tier")

	// ErrInvalidAmount is returned when a principal is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	ErrUserNotFound    = errors.New("user not found")
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrInvalidTransition is returned when a deposit status change is not allowed
	// (e.g. approving a deposit that is already active).
	ErrInvalidTransition = errors.New("invalid deposit status transition")

	// ErrDuplicateID is returned when a record with the same ID already exists.
	ErrDuplicateID = errors.New("duplicate id")

	ErrForbidden = errors.New("forbidden")

	// ErrEmptyOverview is returned when an overview payload carries neither shape.
	ErrEmptyOverview = errors.New("overview payload is empty")

	// ErrSnapshotUnavailable is returned when the overview source fails.
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError describes a rejected deposit status change.
type TransitionError struct {
	DepositID DepositID
	From      string
	To        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("deposit %s: cannot move from %s to %s", e.DepositID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RoleError is returned by role checks.
type RoleError struct {
	Required Role
	Actual   Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("role %q required, got %q", e.Required, e.Actual)
}

func (e *RoleError) Unwrap() error {
	return ErrForbidden
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSnapshotUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidTier) ||
		errors.Is(err, ErrEmptySchedule) ||
		errors.Is(err, ErrDuplicateID)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDepositNotFound)
}
