/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements plans.Store (users, deposits, maturity runs) on SQLite. The
  schema lives in migrations/ and is applied on New() with golang-migrate.

KEY TABLES:
  users:         Investor accounts and credited profit
  deposits:      Principal, stamped rate, lifecycle dates and status
  maturity_runs: One row per deposit closing

ENCODING:
  Money and rates are stored as TEXT decimal strings so nothing is ever
  rounded through float64. Timestamps are fixed-width UTC strings, which
  keeps ORDER BY on them chronological.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. CloseDeposit runs in a single SQL
  transaction so a deposit is never closed without its profit credited.

USAGE:
  store, err := sqlite.New("./data/yield.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - plans/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is RFC 3339 with a fixed nine-digit fraction.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements plans.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ plans.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the embedded migrations. The migrate instance is not
// closed: its sqlite3 driver would close the shared *sql.DB.
func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, u plans.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, email, role, net_profit, referral_earnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			net_profit = excluded.net_profit,
			referral_earnings = excluded.referral_earnings
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, string(u.Role),
		u.NetProfit.String(), u.ReferralEarnings.String(),
		formatTime(u.CreatedAt),
	)
	return err
}

const userColumns = `id, name, email, role, net_profit, referral_earnings, created_at`

func (s *Store) GetUser(ctx context.Context, id generic.UserID) (*plans.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]plans.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []plans.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreditProfit adds delta to the user's credited NetProfit.
func (s *Store) CreditProfit(ctx context.Context, id generic.UserID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return creditProfit(ctx, s.db, id, delta)
}

func creditProfit(ctx context.Context, db execer, id generic.UserID, delta decimal.Decimal) error {
	var current string
	err := db.QueryRowContext(ctx, `SELECT net_profit FROM users WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ErrUserNotFound
	}
	if err != nil {
		return err
	}
	balance, err := decimal.NewFromString(current)
	if err != nil {
		return fmt.Errorf("corrupt net_profit for user %s: %w", id, err)
	}
	next := balance.Add(delta)
	_, err = db.ExecContext(ctx, `UPDATE users SET net_profit = ? WHERE id = ?`, next.String(), id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (plans.User, error) {
	var u plans.User
	var id, role, netProfit, referral, createdAt string
	if err := row.Scan(&id, &u.Name, &u.Email, &role, &netProfit, &referral, &createdAt); err != nil {
		return plans.User{}, err
	}
	u.ID = generic.UserID(id)
	u.Role = generic.Role(role)
	u.NetProfit = generic.MustParseDecimal(netProfit)
	u.ReferralEarnings = generic.MustParseDecimal(referral)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// =============================================================================
// DEPOSITS
// =============================================================================

// SaveDeposit inserts a new deposit.
func (s *Store) SaveDeposit(ctx context.Context, d plans.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO deposits (id, user_id, principal, rate_percent, start_date,
			approved_at, end_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.UserID, d.Principal.String(), nullDecimal(d.RatePercent),
		nullTime(d.StartDate), nullTime(d.ApprovedAt), nullTime(d.EndDate),
		string(d.Status), formatTime(d.CreatedAt),
	)
	switch {
	case isUniqueConstraintError(err):
		return generic.ErrDuplicateID
	case isForeignKeyError(err):
		return generic.ErrUserNotFound
	}
	return err
}

const depositColumns = `id, user_id, principal, rate_percent, start_date, approved_at, end_date, status, created_at`

func (s *Store) GetDeposit(ctx context.Context, id generic.DepositID) (*plans.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = ?`, id)
	d, err := scanDeposit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrDepositNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDeposit overwrites status and dates of an existing deposit.
func (s *Store) UpdateDeposit(ctx context.Context, d plans.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDeposit(ctx, s.db, d)
}

func updateDeposit(ctx context.Context, db execer, d plans.Deposit) error {
	query := `
		UPDATE deposits SET rate_percent = ?, start_date = ?, approved_at = ?,
			end_date = ?, status = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		nullDecimal(d.RatePercent), nullTime(d.StartDate), nullTime(d.ApprovedAt),
		nullTime(d.EndDate), string(d.Status), d.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.ErrDepositNotFound
	}
	return nil
}

func (s *Store) ListDepositsByUser(ctx context.Context, userID generic.UserID) ([]plans.Deposit, error) {
	return s.queryDeposits(ctx, `SELECT `+depositColumns+` FROM deposits
		WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
}

func (s *Store) ListDepositsByStatus(ctx context.Context, status plans.DepositStatus) ([]plans.Deposit, error) {
	return s.queryDeposits(ctx, `SELECT `+depositColumns+` FROM deposits
		WHERE status = ? ORDER BY created_at ASC, id ASC`, string(status))
}

func (s *Store) queryDeposits(ctx context.Context, query string, args ...any) ([]plans.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []plans.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func scanDeposit(row scanner) (plans.Deposit, error) {
	var d plans.Deposit
	var id, userID, principal, status, createdAt string
	var rate, start, approved, end sql.NullString
	if err := row.Scan(&id, &userID, &principal, &rate, &start, &approved, &end, &status, &createdAt); err != nil {
		return plans.Deposit{}, err
	}
	d.ID = generic.DepositID(id)
	d.UserID = generic.UserID(userID)
	d.Principal = generic.MustParseDecimal(principal)
	if rate.Valid {
		d.RatePercent = decimal.NewNullDecimal(generic.MustParseDecimal(rate.String))
	}
	d.StartDate = parseNullTime(start)
	d.ApprovedAt = parseNullTime(approved)
	d.EndDate = parseNullTime(end)
	d.Status = plans.DepositStatus(status)
	d.CreatedAt = parseTime(createdAt)
	return d, nil
}

// CloseDeposit closes the deposit and credits profit in one transaction.
func (s *Store) CloseDeposit(ctx context.Context, d plans.Deposit, profit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d.Status = plans.StatusClosed
	if err := updateDeposit(ctx, tx, d); err != nil {
		return err
	}
	if err := creditProfit(ctx, tx, d.UserID, profit); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// MATURITY RUNS
// =============================================================================

// SaveMaturityRun inserts or replaces a run by ID.
func (s *Store) SaveMaturityRun(ctx context.Context, r plans.MaturityRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO maturity_runs (id, deposit_id, user_id, profit, status, error,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			profit = excluded.profit,
			status = excluded.status,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.DepositID, r.UserID, r.Profit.String(), string(r.Status), r.Error,
		formatTime(r.StartedAt), nullTime(r.CompletedAt),
	)
	return err
}

// ListMaturityRuns returns runs newest first. An empty status returns all runs.
func (s *Store) ListMaturityRuns(ctx context.Context, status plans.RunStatus) ([]plans.MaturityRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, deposit_id, user_id, profit, status, error, started_at, completed_at
		FROM maturity_runs
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []plans.MaturityRun
	for rows.Next() {
		var r plans.MaturityRun
		var depositID, userID, profit, runStatus, startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&r.ID, &depositID, &userID, &profit, &runStatus, &r.Error,
			&startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.DepositID = generic.DepositID(depositID)
		r.UserID = generic.UserID(userID)
		r.Profit = generic.MustParseDecimal(profit)
		r.Status = plans.RunStatus(runStatus)
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseNullTime(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset removes all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"maturity_runs", "deposits", "users"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
