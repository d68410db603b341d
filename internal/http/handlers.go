package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/log"
)

type tripView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	Members   []memberView `json:"members,omitempty"`
}

type memberView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type splitView struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
	Policy   string `json:"policy"`
	Ratio    string `json:"ratio,omitempty"`
}

type expenseView struct {
	ID                 string      `json:"id"`
	TripID             string      `json:"trip_id"`
	PayerID            string      `json:"payer_id"`
	Description        string      `json:"description"`
	OriginalAmount     string      `json:"original_amount"`
	OriginalCurrency   string      `json:"original_currency"`
	CanonicalAmount    string      `json:"canonical_amount"`
	AccountingCurrency string      `json:"accounting_currency"`
	ExchangeRate       string      `json:"exchange_rate"`
	Splits             []splitView `json:"splits"`
	CreatedAt          time.Time   `json:"created_at"`
}

type standingView struct {
	MemberID string `json:"member_id"`
	Amount   string `json:"amount"`
}

type balancesView struct {
	TripID   string            `json:"trip_id"`
	Currency string            `json:"currency"`
	Balances map[string]string `json:"balances"`
	Owed     []standingView    `json:"owed"`
	Owing    []standingView    `json:"owing"`
	Settled  []string          `json:"settled"`
}

func newMemberViews(members []core.Member) []memberView {
	out := make([]memberView, len(members))
	for i, m := range members {
		out[i] = memberView{ID: m.ID, Name: m.Name}
	}
	return out
}

func newExpenseView(e core.Expense, accounting string) expenseView {
	v := expenseView{
		ID:                 e.ID,
		TripID:             e.TripID,
		PayerID:            e.PayerID,
		Description:        e.Description,
		OriginalAmount:     core.FormatMoney(e.OriginalAmount),
		OriginalCurrency:   e.OriginalCurrency,
		CanonicalAmount:    core.FormatMoney(e.CanonicalAmount),
		AccountingCurrency: accounting,
		ExchangeRate:       core.RoundRate(e.ExchangeRate).String(),
		Splits:             make([]splitView, len(e.Splits)),
		CreatedAt:          e.CreatedAt,
	}
	for i, sp := range e.Splits {
		sv := splitView{MemberID: sp.MemberID, Amount: core.FormatMoney(sp.Amount), Policy: string(sp.Policy)}
		if sp.Ratio != nil {
			sv.Ratio = sp.Ratio.String()
		}
		v.Splits[i] = sv
	}
	return v
}

func newStandingViews(list []ledger.Standing) []standingView {
	out := make([]standingView, len(list))
	for i, s := range list {
		out[i] = standingView{MemberID: s.MemberID, Amount: core.FormatMoney(s.Amount)}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "service not ready").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := s.svc.ListCurrencies(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{
		"accounting_currency": s.svc.AccountingCurrency(),
		"currencies":          currencies,
	}).Write(w)
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "currency")))
	rate, err := s.svc.GetRate(r.Context(), currency)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]string{
		"base":     s.svc.AccountingCurrency(),
		"currency": currency,
		"rate":     rate.String(),
	}).Write(w)
}

// handleCreateTrip creates a trip with its initial roster. The caller, when
// identified, is added first so they can manage the trip afterwards.
func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var body createTripBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	roster := body.Members
	if caller, ok := GetMemberID(r.Context()); ok {
		found := false
		for _, m := range roster {
			if strings.TrimSpace(m.ID) == caller {
				found = true
				break
			}
		}
		if !found {
			roster = append([]addMemberBody{{ID: caller}}, roster...)
		}
	}
	if len(roster) == 0 {
		ErrorResponse(http.StatusUnprocessableEntity, "empty_roster", "a trip needs at least one member").Write(w)
		return
	}

	members := make([]core.Member, len(roster))
	for i, m := range roster {
		members[i] = core.Member{ID: sanitizeInput(m.ID), Name: sanitizeInput(m.Name)}
	}

	ctx := r.Context()
	trip, err := s.svc.CreateTrip(ctx, sanitizeInput(body.Name), members...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.svc.ListMembers(ctx, trip.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := tripView{ID: trip.ID, Name: trip.Name, CreatedAt: trip.CreatedAt, Members: newMemberViews(stored)}

	log.FromContext(ctx).InfoContext(ctx, "Trip created",
		log.FieldTripID, trip.ID,
		log.FieldOperation, log.OpCreate)
	NewResponse().Status(http.StatusCreated).
		Header("Location", "/trips/"+trip.ID).
		JSON(view).Write(w)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	trip, err := s.svc.GetTrip(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	members, err := s.svc.ListMembers(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(tripView{
		ID:        trip.ID,
		Name:      trip.Name,
		CreatedAt: trip.CreatedAt,
		Members:   newMemberViews(members),
	}).Write(w)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.ListMembers(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{"members": newMemberViews(members)}).Write(w)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var body addMemberBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	member, err := s.svc.AddMember(r.Context(), chi.URLParam(r, "tripID"), sanitizeInput(body.ID), sanitizeInput(body.Name))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(memberView{ID: member.ID, Name: member.Name}).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.svc.ListExpenses(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	accounting := s.svc.AccountingCurrency()
	views := make([]expenseView, len(expenses))
	for i, e := range expenses {
		views[i] = newExpenseView(e, accounting)
	}
	NewResponse().JSON(map[string]any{"expenses": views}).Write(w)
}

// handleAddExpense records an expense paid by the caller.
func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	payerID, _ := GetMemberID(r.Context())

	var body addExpenseBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	req, err := body.toRequest(chi.URLParam(r, "tripID"), payerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	e, err := s.svc.AddExpense(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(newExpenseView(e, s.svc.AccountingCurrency())).Write(w)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	balances, err := s.svc.GetBalances(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	standings := ledger.Summarize(balances)

	view := balancesView{
		TripID:   tripID,
		Currency: s.svc.AccountingCurrency(),
		Balances: make(map[string]string, len(balances)),
		Owed:     newStandingViews(standings.Owed),
		Owing:    newStandingViews(standings.Owing),
		Settled:  standings.Settled,
	}
	if view.Settled == nil {
		view.Settled = []string{}
	}
	for id, b := range balances {
		view.Balances[id] = core.FormatMoney(b)
	}
	NewResponse().JSON(view).Write(w)
}
