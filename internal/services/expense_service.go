package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tripsplit/internal/amqp"
	"tripsplit/internal/cache"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/log"
	"tripsplit/internal/ports"
	"tripsplit/internal/rates"
	"tripsplit/internal/split"
)

// Publisher delivers expense events. *amqp.Client implements it.
type Publisher interface {
	PublishExpenseAdded(ctx context.Context, msg *amqp.ExpenseAddedMessage) error
}

// AddExpenseRequest is a submitted expense. Inputs carry ratio weights or
// fixed shares; fixed shares are in OriginalCurrency.
type AddExpenseRequest struct {
	TripID           string
	PayerID          string
	Description      string
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	Policy           core.SplitPolicy
	Inputs           []split.Input
}

type Balances = map[string]decimal.Decimal

// ExpenseService records expenses and derives balances.
type ExpenseService struct {
	store     ports.Store
	converter *rates.Converter
	balances  cache.Cache[Balances]
	publisher Publisher
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time

	// generations counts writes per trip. A balance computed from an older
	// generation is never cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

type Option func(*ExpenseService)

func WithPublisher(p Publisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithBalanceCache(c cache.Cache[Balances]) Option {
	return func(s *ExpenseService) { s.balances = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(store ports.Store, converter *rates.Converter, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store:       store,
		converter:   converter,
		logger:      log.Default(),
		now:         time.Now,
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentExpense)
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// CreateTrip starts a new trip with a generated ID and its initial roster.
// Members without an ID get a generated one. Either the trip and every
// member are stored or nothing is.
func (s *ExpenseService) CreateTrip(ctx context.Context, name string, roster ...core.Member) (core.Trip, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Trip{}, fmt.Errorf("%w: name required", core.ErrInvalidTrip)
	}
	members := make([]core.Member, len(roster))
	seen := make(map[string]struct{}, len(roster))
	for i, m := range roster {
		m = normalizeMember(m)
		if _, dup := seen[m.ID]; dup {
			return core.Trip{}, fmt.Errorf("%w: %s", core.ErrDuplicateMember, m.ID)
		}
		seen[m.ID] = struct{}{}
		members[i] = m
	}

	t := core.Trip{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.CreateTrip(ctx, t, members...); err != nil {
		return core.Trip{}, err
	}
	return t, nil
}

func (s *ExpenseService) GetTrip(ctx context.Context, tripID string) (core.Trip, error) {
	return s.store.GetTrip(ctx, tripID)
}

// AddMember appends a member to the trip roster. An empty memberID is
// generated.
func (s *ExpenseService) AddMember(ctx context.Context, tripID, memberID, name string) (core.Member, error) {
	m := normalizeMember(core.Member{ID: memberID, Name: name})
	if err := s.store.AddMember(ctx, tripID, m); err != nil {
		return core.Member{}, err
	}
	s.invalidate(tripID)
	return m, nil
}

// AddExpense converts, allocates and persists one expense. Nothing is
// written unless both conversion and allocation succeed.
func (s *ExpenseService) AddExpense(ctx context.Context, req AddExpenseRequest) (core.Expense, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return core.Expense{}, core.ErrEmptyDescription
	}
	if !req.OriginalAmount.IsPositive() {
		return core.Expense{}, core.ErrInvalidAmount
	}
	original := core.RoundMoney(req.OriginalAmount)
	if !original.IsPositive() {
		return core.Expense{}, core.ErrInvalidAmount
	}
	if !req.Policy.IsValid() {
		return core.Expense{}, fmt.Errorf("%w: unknown policy %q", core.ErrInvalidSplit, req.Policy)
	}

	if _, err := s.store.GetTrip(ctx, req.TripID); err != nil {
		return core.Expense{}, err
	}
	members, err := s.store.ListMembers(ctx, req.TripID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("load roster: %w", err)
	}
	roster := make([]string, len(members))
	isMember := false
	for i, m := range members {
		roster[i] = m.ID
		if m.ID == req.PayerID {
			isMember = true
		}
	}
	if !isMember {
		return core.Expense{}, fmt.Errorf("%w: %s", core.ErrNotTripMember, req.PayerID)
	}

	// Fixed shares are checked against the amount the payer typed.
	var fixedShares []core.Split
	if req.Policy == core.PolicyFixed {
		if fixedShares, err = split.Allocate(original, roster, core.PolicyFixed, req.Inputs); err != nil {
			return core.Expense{}, err
		}
	}

	conv, err := s.converter.ConvertToAccounting(ctx, original, req.OriginalCurrency)
	if err != nil {
		return core.Expense{}, err
	}

	splits, err := s.allocate(conv, roster, req, fixedShares)
	if err != nil {
		return core.Expense{}, err
	}

	e := core.Expense{
		ID:               uuid.NewString(),
		TripID:           req.TripID,
		PayerID:          req.PayerID,
		Description:      desc,
		CanonicalAmount:  conv.CanonicalAmount,
		OriginalAmount:   conv.OriginalAmount,
		OriginalCurrency: conv.OriginalCurrency,
		ExchangeRate:     conv.Rate,
		Splits:           splits,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.invalidate(e.TripID)

	s.events.LogExpenseAdded(ctx, e.TripID, e.ID, e.PayerID,
		core.FormatMoney(e.OriginalAmount), e.OriginalCurrency,
		core.FormatMoney(e.CanonicalAmount), string(req.Policy))
	s.publish(ctx, e)
	return e, nil
}

// allocate splits the canonical amount. Fixed shares already validated in the
// original currency are carried over proportionally so they still sum to the
// canonical total.
func (s *ExpenseService) allocate(conv rates.Conversion, roster []string, req AddExpenseRequest, fixedShares []core.Split) ([]core.Split, error) {
	if req.Policy != core.PolicyFixed {
		return split.Allocate(conv.CanonicalAmount, roster, req.Policy, req.Inputs)
	}
	if conv.OriginalCurrency == s.converter.Accounting() {
		return fixedShares, nil
	}

	weights := make([]split.Input, len(fixedShares))
	for i, sh := range fixedShares {
		weights[i] = split.Input{MemberID: sh.MemberID, Value: sh.Amount}
	}
	carried, err := split.Allocate(conv.CanonicalAmount, roster, core.PolicyRatio, weights)
	if err != nil {
		return nil, err
	}
	for i := range carried {
		carried[i].Policy = core.PolicyFixed
		carried[i].Ratio = nil
	}
	return carried, nil
}

func (s *ExpenseService) publish(ctx context.Context, e core.Expense) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewExpenseAddedMessage(e, s.converter.Accounting())
	if err := s.publisher.PublishExpenseAdded(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			log.FieldExpenseID, e.ID,
			log.FieldTripID, e.TripID,
			log.FieldError, err)
	}
}

func (s *ExpenseService) invalidate(tripID string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[tripID]++
	if s.balances != nil {
		s.balances.Delete(tripID)
	}
}

func (s *ExpenseService) generation(tripID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[tripID]
}

// storeBalances caches balances unless the trip was written to after gen
// was read.
func (s *ExpenseService) storeBalances(tripID string, gen uint64, balances Balances) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[tripID] != gen {
		return
	}
	s.balances.Set(tripID, copyBalances(balances))
}

// GetBalances returns every member's signed net balance in the accounting
// currency.
func (s *ExpenseService) GetBalances(ctx context.Context, tripID string) (Balances, error) {
	if s.balances != nil {
		if b, ok := s.balances.Get(tripID); ok {
			return copyBalances(b), nil
		}
	}
	gen := s.generation(tripID)

	var (
		members  []core.Member
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = s.store.ListMembers(gctx, tripID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, tripID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	balances, err := ledger.ComputeBalances(members, expenses)
	if err != nil {
		s.logger.ErrorContext(ctx, "Ledger inconsistent",
			log.FieldTripID, tripID,
			log.FieldOperation, log.OpBalance,
			log.FieldError, err)
		return nil, err
	}
	s.events.LogBalancesComputed(ctx, tripID, len(members), len(expenses))
	if s.balances != nil {
		s.storeBalances(tripID, gen, balances)
	}
	return balances, nil
}

// GetStandings groups the trip's balances into who is owed and who owes.
func (s *ExpenseService) GetStandings(ctx context.Context, tripID string) (ledger.Standings, error) {
	b, err := s.GetBalances(ctx, tripID)
	if err != nil {
		return ledger.Standings{}, err
	}
	return ledger.Summarize(b), nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, tripID)
}

func (s *ExpenseService) ListMembers(ctx context.Context, tripID string) ([]core.Member, error) {
	return s.store.ListMembers(ctx, tripID)
}

// IsMember reports whether memberID belongs to the trip.
func (s *ExpenseService) IsMember(ctx context.Context, tripID, memberID string) (bool, error) {
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.ID == memberID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ExpenseService) GetRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	return s.converter.Rate(ctx, currency)
}

func (s *ExpenseService) ListCurrencies(ctx context.Context) ([]string, error) {
	return s.converter.Currencies(ctx)
}

func (s *ExpenseService) RefreshRates(ctx context.Context) error {
	return s.converter.Refresh(ctx)
}

func (s *ExpenseService) ListAudit(ctx context.Context, tripID string, limit, offset int) ([]core.AuditEntry, error) {
	return s.store.ListAudit(ctx, tripID, limit, offset)
}

func (s *ExpenseService) AccountingCurrency() string {
	return s.converter.Accounting()
}

func normalizeMember(m core.Member) core.Member {
	m.ID, m.Name = strings.TrimSpace(m.ID), strings.TrimSpace(m.Name)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	return m
}

func copyBalances(in Balances) Balances {
	out := make(Balances, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
