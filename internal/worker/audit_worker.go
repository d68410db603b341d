// Package worker consumes expense events: every event is written to the
// audit trail and, when an exporter is configured, mirrored to a sheet.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/ports"
)

// Exporter mirrors an expense to an external system.
type Exporter interface {
	AppendExpense(ctx context.Context, msg *amqp.ExpenseAddedMessage) (string, error)
}

type AuditWorker struct {
	audit    ports.AuditStore
	exporter Exporter
	logger   *log.Logger
}

// NewAuditWorker creates a worker; exporter may be nil.
func NewAuditWorker(audit ports.AuditStore, exporter Exporter, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &AuditWorker{
		audit:    audit,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

type auditDetails struct {
	ExpenseID          string `json:"expense_id"`
	Description        string `json:"description"`
	OriginalAmount     string `json:"original_amount"`
	OriginalCurrency   string `json:"original_currency"`
	CanonicalAmount    string `json:"canonical_amount"`
	AccountingCurrency string `json:"accounting_currency"`
	ExchangeRate       string `json:"exchange_rate"`
	Splits             int    `json:"splits"`
}

// HandleExpenseAdded is an amqp.Handler. The audit entry is keyed by the
// event ID so a redelivered event is recorded once by the sqlite store.
func (w *AuditWorker) HandleExpenseAdded(ctx context.Context, msg *amqp.ExpenseAddedMessage) error {
	details, err := json.Marshal(auditDetails{
		ExpenseID:          msg.ExpenseID,
		Description:        msg.Description,
		OriginalAmount:     core.FormatMoney(msg.OriginalAmount),
		OriginalCurrency:   msg.OriginalCurrency,
		CanonicalAmount:    core.FormatMoney(msg.CanonicalAmount),
		AccountingCurrency: msg.AccountingCurrency,
		ExchangeRate:       msg.ExchangeRate.String(),
		Splits:             len(msg.Splits),
	})
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	entry := core.AuditEntry{
		ID:        msg.EventID,
		TripID:    msg.TripID,
		MemberID:  msg.PayerID,
		Action:    amqp.EventExpenseAdded,
		Details:   string(details),
		CreatedAt: msg.OccurredAt,
	}
	if err := w.audit.RecordAudit(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}

	w.logger.InfoContext(ctx, "Expense event audited",
		log.FieldTripID, msg.TripID,
		log.FieldExpenseID, msg.ExpenseID,
		log.FieldOperation, log.OpConsume)

	if w.exporter == nil {
		return nil
	}
	if _, err := w.exporter.AppendExpense(ctx, msg); err != nil {
		w.logger.ErrorContext(ctx, "Sheet export failed",
			log.FieldExpenseID, msg.ExpenseID,
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
		return fmt.Errorf("export expense: %w", err)
	}
	return nil
}
