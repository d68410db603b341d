package ports

import (
	"context"

	"tripsplit/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseStore persists expenses together with their splits.
	ExpenseStore interface {
		// CreateExpense writes the expense and all of its splits atomically.
		CreateExpense(ctx context.Context, e core.Expense) error
		// ListExpenses returns every expense of a trip, newest first.
		ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error)
	}

	TripStore interface {
		// CreateTrip stores the trip and its initial roster together; on error
		// neither is stored.
		CreateTrip(ctx context.Context, t core.Trip, roster ...core.Member) error
		GetTrip(ctx context.Context, tripID string) (core.Trip, error)
		AddMember(ctx context.Context, tripID string, m core.Member) error
		ListMembers(ctx context.Context, tripID string) ([]core.Member, error)
	}

	// RateStore holds the process-wide rate table keyed by currency code.
	RateStore interface {
		LookupRate(ctx context.Context, currency string) (core.RateEntry, bool, error)
		// UpsertRates replaces the given currencies in a single step; readers
		// observe either the old or the new table, never a mix.
		UpsertRates(ctx context.Context, entries []core.RateEntry) error
		ListCurrencies(ctx context.Context) ([]string, error)
	}

	AuditStore interface {
		RecordAudit(ctx context.Context, e core.AuditEntry) error
		ListAudit(ctx context.Context, tripID string, limit, offset int) ([]core.AuditEntry, error)
	}

	// Store is everything a backend has to provide.
	Store interface {
		ExpenseStore
		TripStore
		RateStore
		AuditStore
		Close() error
	}
)
