// Package storage persists trips, expenses, rates and the audit trail in
// SQLite. Decimal values are stored as TEXT so no precision is lost.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
	"tripsplit/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

// DSN returns the connection string used for dbPath.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateTrip inserts the trip and its roster in one transaction.
func (r *SQLiteRepository) CreateTrip(ctx context.Context, t core.Trip, roster ...core.Member) (err error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	seen := make(map[string]struct{}, len(roster))
	for _, m := range roster {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: %s", core.ErrDuplicateMember, m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO trips (id, name, created_at) VALUES (?, ?, ?)`,
		t.ID, t.Name, t.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	for i, m := range roster {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO trip_members (trip_id, member_id, name, position) VALUES (?, ?, ?, ?)`,
			t.ID, m.ID, m.Name, i); err != nil {
			return fmt.Errorf("add member %s: %w", m.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit trip: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTrip(ctx context.Context, tripID string) (core.Trip, error) {
	var (
		t       core.Trip
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM trips WHERE id = ?`, tripID).
		Scan(&t.ID, &t.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Trip{}, core.ErrTripNotFound
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	t.CreatedAt = time.UnixMilli(created)
	return t, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, tripID string, m core.Member) error {
	if _, err := r.GetTrip(ctx, tripID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trip_members (trip_id, member_id, name, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM trip_members WHERE trip_id = ?))`,
		tripID, m.ID, m.Name, tripID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s already in trip %s", core.ErrDuplicateMember, m.ID, tripID)
		}
		return fmt.Errorf("add member %s: %w", m.ID, err)
	}
	return nil
}

// ListMembers returns the roster in join order.
func (r *SQLiteRepository) ListMembers(ctx context.Context, tripID string) ([]core.Member, error) {
	if _, err := r.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, name FROM trip_members WHERE trip_id = ? ORDER BY position`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateExpense writes the expense row and its splits in one transaction.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (err error) {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, trip_id, payer_id, description, canonical_amount,
			original_amount, original_currency, exchange_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TripID, e.PayerID, e.Description,
		e.CanonicalAmount.String(), e.OriginalAmount.String(), e.OriginalCurrency,
		e.ExchangeRate.String(), e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expense_splits (expense_id, member_id, amount, policy, ratio, position)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare split insert: %w", err)
	}
	defer stmt.Close()

	for i, sp := range e.Splits {
		var ratio sql.NullString
		if sp.Ratio != nil {
			ratio = sql.NullString{String: sp.Ratio.String(), Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, e.ID, sp.MemberID, sp.Amount.String(), string(sp.Policy), ratio, i); err != nil {
			return fmt.Errorf("insert split for %s: %w", sp.MemberID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit expense: %w", err)
	}

	r.logger.DebugContext(ctx, "Expense stored",
		log.FieldExpenseID, e.ID,
		log.FieldTripID, e.TripID,
		"splits", len(e.Splits))
	return nil
}

// ListExpenses returns the trip's expenses newest first, splits in the order
// they were allocated.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	if _, err := r.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trip_id, payer_id, description, canonical_amount, original_amount,
			original_currency, exchange_rate, created_at
		FROM expenses WHERE trip_id = ?
		ORDER BY created_at DESC, rowid DESC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	var (
		expenses []core.Expense
		index    = map[string]int{}
	)
	for rows.Next() {
		var (
			e                            core.Expense
			canonical, original, rateStr string
			created                      int64
		)
		if err := rows.Scan(&e.ID, &e.TripID, &e.PayerID, &e.Description,
			&canonical, &original, &e.OriginalCurrency, &rateStr, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.CanonicalAmount, err = decimal.NewFromString(canonical); err != nil {
			rows.Close()
			return nil, fmt.Errorf("expense %s canonical amount: %w", e.ID, err)
		}
		if e.OriginalAmount, err = decimal.NewFromString(original); err != nil {
			rows.Close()
			return nil, fmt.Errorf("expense %s original amount: %w", e.ID, err)
		}
		if e.ExchangeRate, err = decimal.NewFromString(rateStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("expense %s rate: %w", e.ID, err)
		}
		e.CreatedAt = time.UnixMilli(created)
		index[e.ID] = len(expenses)
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	splitRows, err := r.db.QueryContext(ctx, `
		SELECT s.expense_id, s.member_id, s.amount, s.policy, s.ratio
		FROM expense_splits s
		JOIN expenses e ON e.id = s.expense_id
		WHERE e.trip_id = ?
		ORDER BY s.expense_id, s.position`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer splitRows.Close()

	for splitRows.Next() {
		var (
			expenseID, amount, policy string
			ratio                     sql.NullString
			sp                        core.Split
		)
		if err := splitRows.Scan(&expenseID, &sp.MemberID, &amount, &policy, &ratio); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		if sp.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("split amount for %s: %w", expenseID, err)
		}
		sp.Policy = core.SplitPolicy(policy)
		if ratio.Valid {
			w, err := decimal.NewFromString(ratio.String)
			if err != nil {
				return nil, fmt.Errorf("split ratio for %s: %w", expenseID, err)
			}
			sp.Ratio = &w
		}
		i, ok := index[expenseID]
		if !ok {
			continue
		}
		expenses[i].Splits = append(expenses[i].Splits, sp)
	}
	return expenses, splitRows.Err()
}

func (r *SQLiteRepository) LookupRate(ctx context.Context, currency string) (core.RateEntry, bool, error) {
	var (
		rate    string
		updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT rate, last_updated FROM exchange_rates WHERE currency = ?`, currency).
		Scan(&rate, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RateEntry{}, false, nil
	}
	if err != nil {
		return core.RateEntry{}, false, fmt.Errorf("lookup rate: %w", err)
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return core.RateEntry{}, false, fmt.Errorf("parse rate %s: %w", currency, err)
	}
	return core.RateEntry{Currency: currency, Rate: d, LastUpdated: time.UnixMilli(updated)}, true, nil
}

// UpsertRates writes the whole batch in one transaction.
func (r *SQLiteRepository) UpsertRates(ctx context.Context, entries []core.RateEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO exchange_rates (currency, rate, last_updated) VALUES (?, ?, ?)
		ON CONFLICT(currency) DO UPDATE SET rate = excluded.rate, last_updated = excluded.last_updated`)
	if err != nil {
		return fmt.Errorf("prepare rate upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, e.Currency, e.Rate.String(), e.LastUpdated.UnixMilli()); err != nil {
			return fmt.Errorf("upsert rate %s: %w", e.Currency, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rates: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListCurrencies(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT currency FROM exchange_rates ORDER BY currency`)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *SQLiteRepository) RecordAudit(ctx context.Context, e core.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_trail (id, trip_id, member_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID, e.TripID, e.MemberID, e.Action, e.Details, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListAudit returns audit entries newest first. An empty tripID lists every
// trip; a non-positive limit means no limit.
func (r *SQLiteRepository) ListAudit(ctx context.Context, tripID string, limit, offset int) ([]core.AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trip_id, member_id, action, details, created_at
		FROM audit_trail
		WHERE ? = '' OR trip_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, tripID, tripID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e       core.AuditEntry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.TripID, &e.MemberID, &e.Action, &e.Details, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
