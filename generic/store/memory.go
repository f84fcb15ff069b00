// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	users    map[generic.UserID]plans.User
	deposits map[generic.DepositID]plans.Deposit
	runs     []plans.MaturityRun
}

var _ plans.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[generic.UserID]plans.User),
		deposits: make(map[generic.DepositID]plans.Deposit),
	}
}

// SaveUser inserts or replaces a user.
func (m *Memory) SaveUser(_ context.Context, u plans.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id generic.UserID) (*plans.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, generic.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]plans.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]plans.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreditProfit(_ context.Context, id generic.UserID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(id, delta)
}

func (m *Memory) creditLocked(id generic.UserID, delta decimal.Decimal) error {
	u, ok := m.users[id]
	if !ok {
		return generic.ErrUserNotFound
	}
	u.NetProfit = u.NetProfit.Add(delta)
	m.users[id] = u
	return nil
}

func (m *Memory) SaveDeposit(_ context.Context, d plans.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.deposits[d.ID]; exists {
		return generic.ErrDuplicateID
	}
	if _, ok := m.users[d.UserID]; !ok {
		return generic.ErrUserNotFound
	}
	m.deposits[d.ID] = d
	return nil
}

func (m *Memory) GetDeposit(_ context.Context, id generic.DepositID) (*plans.Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, generic.ErrDepositNotFound
	}
	return &d, nil
}

func (m *Memory) UpdateDeposit(_ context.Context, d plans.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[d.ID]; !ok {
		return generic.ErrDepositNotFound
	}
	m.deposits[d.ID] = d
	return nil
}

func (m *Memory) ListDepositsByUser(_ context.Context, userID generic.UserID) ([]plans.Deposit, error) {
	return m.filterDeposits(func(d plans.Deposit) bool { return d.UserID == userID }), nil
}

func (m *Memory) ListDepositsByStatus(_ context.Context, status plans.DepositStatus) ([]plans.Deposit, error) {
	return m.filterDeposits(func(d plans.Deposit) bool { return d.Status == status }), nil
}

func (m *Memory) filterDeposits(keep func(plans.Deposit) bool) []plans.Deposit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []plans.Deposit
	for _, d := range m.deposits {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseDeposit closes the deposit and credits profit under one lock.
func (m *Memory) CloseDeposit(_ context.Context, d plans.Deposit, profit decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[d.ID]; !ok {
		return generic.ErrDepositNotFound
	}
	if err := m.creditLocked(d.UserID, profit); err != nil {
		return err
	}
	d.Status = plans.StatusClosed
	m.deposits[d.ID] = d
	return nil
}

// SaveMaturityRun inserts or replaces a run by ID.
func (m *Memory) SaveMaturityRun(_ context.Context, run plans.MaturityRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListMaturityRuns(_ context.Context, status plans.RunStatus) ([]plans.MaturityRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []plans.MaturityRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if status == "" || m.runs[i].Status == status {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[generic.UserID]plans.User)
	m.deposits = make(map[generic.DepositID]plans.Deposit)
	m.runs = nil
	return nil
}
