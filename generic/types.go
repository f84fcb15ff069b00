/*
Package generic provides the domain-agnostic primitives of the yield engine.

PURPOSE:
  This package contains the money arithmetic, business-time math, error
  taxonomy and persistence interfaces shared by the calculators (plans),
  the live reconciliation controller (live) and the reference backend (api).

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal values rounded to currency minor units
  - Percent: conversion of "7" (percent) into a 0.07 multiplier
  - Identifiers: type-safe user and deposit IDs

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing user/deposit IDs
  3. Rounding once: values are rounded to cents at the point of return,
     never in intermediate steps

USAGE:
  daily := generic.RoundCents(principal.Mul(generic.Percent(rate)))

SEE ALSO:
  - time.go: Business-minute computation
  - errors.go: Sentinel and structured errors
  - store.go: Persistence interfaces
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// CentPlaces is the number of decimal places kept for currency amounts.
const CentPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundCents rounds a currency amount to the minor unit (half away from zero).
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// Percent converts a percentage ("2.5") to a multiplier (0.025).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// MaxZero clamps negative amounts to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type DepositID string

// Role gates privileged operations on the backend.
type Role string

const (
	RoleInvestor Role = "investor"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleInvestor, RoleAgent, RoleAdmin:
		return true
	}
	return false
}
