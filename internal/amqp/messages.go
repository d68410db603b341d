package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

// EventExpenseAdded is the routing key and audit action for new expenses.
const EventExpenseAdded = "expense_added"

// ExpenseAddedMessage is published once per persisted expense. It carries the
// full expense so consumers never read back from the database.
type ExpenseAddedMessage struct {
	EventID            string          `json:"event_id"`
	TripID             string          `json:"trip_id"`
	ExpenseID          string          `json:"expense_id"`
	PayerID            string          `json:"payer_id"`
	Description        string          `json:"description"`
	CanonicalAmount    decimal.Decimal `json:"canonical_amount"`
	AccountingCurrency string          `json:"accounting_currency"`
	OriginalAmount     decimal.Decimal `json:"original_amount"`
	OriginalCurrency   string          `json:"original_currency"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	Splits             []SplitShare    `json:"splits"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

type SplitShare struct {
	MemberID string          `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
	Policy   string          `json:"policy"`
}

func NewExpenseAddedMessage(e core.Expense, accounting string) *ExpenseAddedMessage {
	shares := make([]SplitShare, len(e.Splits))
	for i, s := range e.Splits {
		shares[i] = SplitShare{MemberID: s.MemberID, Amount: s.Amount, Policy: string(s.Policy)}
	}
	occurred := e.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return &ExpenseAddedMessage{
		EventID:            uuid.NewString(),
		TripID:             e.TripID,
		ExpenseID:          e.ID,
		PayerID:            e.PayerID,
		Description:        e.Description,
		CanonicalAmount:    e.CanonicalAmount,
		AccountingCurrency: accounting,
		OriginalAmount:     e.OriginalAmount,
		OriginalCurrency:   e.OriginalCurrency,
		ExchangeRate:       e.ExchangeRate,
		Splits:             shares,
		OccurredAt:         occurred.UTC(),
	}
}

func (m *ExpenseAddedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseAddedMessageFromJSON decodes and sanity-checks a message body.
func ExpenseAddedMessageFromJSON(data []byte) (*ExpenseAddedMessage, error) {
	var msg ExpenseAddedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TripID == "" || msg.ExpenseID == "" {
		return nil, fmt.Errorf("message missing trip or expense id")
	}
	return &msg, nil
}
