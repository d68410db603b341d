package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/middleware/ratelimit"
	"tripsplit/internal/middleware/trace"
	"tripsplit/internal/services"
)

// ExpenseService is what the handlers need from the service layer.
type ExpenseService interface {
	CreateTrip(ctx context.Context, name string, roster ...core.Member) (core.Trip, error)
	GetTrip(ctx context.Context, tripID string) (core.Trip, error)
	AddMember(ctx context.Context, tripID, memberID, name string) (core.Member, error)
	ListMembers(ctx context.Context, tripID string) ([]core.Member, error)
	IsMember(ctx context.Context, tripID, memberID string) (bool, error)
	AddExpense(ctx context.Context, req services.AddExpenseRequest) (core.Expense, error)
	ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error)
	GetBalances(ctx context.Context, tripID string) (services.Balances, error)
	GetRate(ctx context.Context, currency string) (decimal.Decimal, error)
	ListCurrencies(ctx context.Context) ([]string, error)
	AccountingCurrency() string
}

type Server struct {
	http.Server
	svc     ExpenseService
	logger  *log.Logger
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	ready   func(context.Context) error

	rateLimitPerMin int
	shutdownOnce    sync.Once
}

type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit caps write requests per client IP and minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimitPerMin = perMinute }
}

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc ExpenseService, opts ...Option) *Server {
	s := &Server{
		svc:             svc,
		logger:          log.Default(),
		rateLimitPerMin: ratelimit.DefaultConfig().RequestsPerMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimitPerMin})
	s.tracer = trace.NewMiddleware(clientIP, s.logger)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(log.RequestIDMiddleware(trace.RequestID))
	r.Use(securityHeaders)
	r.Use(MemberIdentity)

	limited := s.limiter.Middleware(clientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Get("/currencies", s.handleListCurrencies)
	r.Get("/rates/{currency}", s.handleGetRate)

	r.With(limited).Post("/trips", s.handleCreateTrip)
	r.Route("/trips/{tripID}", func(r chi.Router) {
		r.Use(s.requireTripMember)
		r.Get("/", s.handleGetTrip)
		r.Get("/members", s.handleListMembers)
		r.With(limited).Post("/members", s.handleAddMember)
		r.Get("/expenses", s.handleListExpenses)
		r.With(limited).Post("/expenses", s.handleAddExpense)
		r.Get("/balances", s.handleGetBalances)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not_found", "no such route").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed").Write(w)
	})
	return r
}

// Shutdown stops the limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote address without its port; RealIP has already
// applied X-Forwarded-For and X-Real-IP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeError logs internal failures and writes the mapped response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := FromError(err)
	if status, _ := statusForError(err); status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	}
	resp.Write(w)
}
