package log

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request-scoped logger, or the default logger when
// none was attached.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return Default()
}

// Middleware attaches logger to every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware tags the request logger with the ID returned by
// extractRequestID.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := extractRequestID(r); id != "" {
				ctx = WithContextFields(ctx, FieldRequestID, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithContextFields adds key/value pairs to the logger stored in ctx.
func WithContextFields(ctx context.Context, args ...any) context.Context {
	return NewContext(ctx, FromContext(ctx).With(args...))
}

// StructuredLogger logs domain events with a fixed field layout.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	if logger == nil {
		logger = Default()
	}
	return &StructuredLogger{logger: logger}
}

// LogExpenseAdded logs a persisted expense.
func (sl *StructuredLogger) LogExpenseAdded(ctx context.Context, tripID, expenseID, payerID, original, currency, canonical, policy string) {
	fields := NewFields().
		WithExpense(tripID, expenseID, payerID, original, currency, canonical, policy).
		WithOperation(OpCreate)

	sl.logger.WithComponent(ComponentExpense).InfoContext(ctx, "Expense added", fields.ToSlice()...)
}

// LogBalancesComputed logs a ledger recomputation for a trip.
func (sl *StructuredLogger) LogBalancesComputed(ctx context.Context, tripID string, members, expenses int) {
	fields := NewFields().
		WithOperation(OpBalance)
	fields[FieldTripID] = tripID
	fields["members"] = members
	fields["expenses"] = expenses

	sl.logger.WithComponent(ComponentLedger).DebugContext(ctx, "Balances computed", fields.ToSlice()...)
}
