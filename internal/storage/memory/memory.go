// Package memory is an in-process implementation of ports.Store used for
// local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"tripsplit/internal/core"
)

type Store struct {
	mu       sync.Mutex
	trips    map[string]core.Trip
	members  map[string][]core.Member
	expenses map[string][]core.Expense
	audit    []core.AuditEntry

	// rates is swapped as a whole so readers never see a partial refresh.
	rates atomic.Pointer[map[string]core.RateEntry]
}

func New() *Store {
	s := &Store{
		trips:    map[string]core.Trip{},
		members:  map[string][]core.Member{},
		expenses: map[string][]core.Expense{},
	}
	empty := map[string]core.RateEntry{}
	s.rates.Store(&empty)
	return s
}

// NewWithRates seeds the rate table.
func NewWithRates(entries ...core.RateEntry) *Store {
	s := New()
	_ = s.UpsertRates(context.Background(), entries)
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateTrip(_ context.Context, t core.Trip, roster ...core.Member) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("trip id required")
	}
	seen := make(map[string]struct{}, len(roster))
	for _, m := range roster {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("member id required")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: %s", core.ErrDuplicateMember, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[t.ID]; ok {
		return fmt.Errorf("trip %s already exists", t.ID)
	}
	s.trips[t.ID] = t
	if len(roster) > 0 {
		s.members[t.ID] = append([]core.Member(nil), roster...)
	}
	return nil
}

func (s *Store) GetTrip(_ context.Context, tripID string) (core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok {
		return core.Trip{}, core.ErrTripNotFound
	}
	return t, nil
}

func (s *Store) AddMember(_ context.Context, tripID string, m core.Member) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("member id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[tripID]; !ok {
		return core.ErrTripNotFound
	}
	for _, existing := range s.members[tripID] {
		if existing.ID == m.ID {
			return fmt.Errorf("%w: %s already in trip %s", core.ErrDuplicateMember, m.ID, tripID)
		}
	}
	s.members[tripID] = append(s.members[tripID], m)
	return nil
}

// ListMembers returns the roster in join order.
func (s *Store) ListMembers(_ context.Context, tripID string) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[tripID]; !ok {
		return nil, core.ErrTripNotFound
	}
	return append([]core.Member(nil), s.members[tripID]...), nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[e.TripID]; !ok {
		return core.ErrTripNotFound
	}
	s.expenses[e.TripID] = append(s.expenses[e.TripID], cloneExpense(e))
	return nil
}

// ListExpenses returns the trip's expenses newest first.
func (s *Store) ListExpenses(_ context.Context, tripID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[tripID]; !ok {
		return nil, core.ErrTripNotFound
	}
	items := s.expenses[tripID]
	out := make([]core.Expense, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, cloneExpense(items[i]))
	}
	return out, nil
}

func (s *Store) LookupRate(_ context.Context, currency string) (core.RateEntry, bool, error) {
	table := *s.rates.Load()
	e, ok := table[currency]
	return e, ok, nil
}

// UpsertRates builds a new table from the current one plus entries and
// publishes it in one pointer swap.
func (s *Store) UpsertRates(_ context.Context, entries []core.RateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := *s.rates.Load()
	next := make(map[string]core.RateEntry, len(current)+len(entries))
	for k, v := range current {
		next[k] = v
	}
	for _, e := range entries {
		next[e.Currency] = e
	}
	s.rates.Store(&next)
	return nil
}

func (s *Store) ListCurrencies(_ context.Context) ([]string, error) {
	table := *s.rates.Load()
	out := make([]string, 0, len(table))
	for code := range table {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) RecordAudit(_ context.Context, e core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// ListAudit returns a trip's audit entries newest first. An empty tripID
// lists every trip.
func (s *Store) ListAudit(_ context.Context, tripID string, limit, offset int) ([]core.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if tripID == "" || s.audit[i].TripID == tripID {
			out = append(out, s.audit[i])
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func cloneExpense(e core.Expense) core.Expense {
	splits := make([]core.Split, len(e.Splits))
	for i, sp := range e.Splits {
		if sp.Ratio != nil {
			r := *sp.Ratio
			sp.Ratio = &r
		}
		splits[i] = sp
	}
	e.Splits = splits
	return e
}
