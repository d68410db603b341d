// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
	"tripsplit/internal/services"
	"tripsplit/internal/split"
)

const maxBodyBytes = 64 << 10

var errBadJSON = errors.New("malformed JSON body")

type createTripBody struct {
	Name    string          `json:"name"`
	Members []addMemberBody `json:"members"`
}

type addMemberBody struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type splitShareBody struct {
	MemberID string      `json:"member_id"`
	Value    json.Number `json:"value"`
}

type splitBody struct {
	Policy string           `json:"policy"`
	Shares []splitShareBody `json:"shares"`
}

// addExpenseBody is the POST /trips/{tripID}/expenses payload. Amounts are
// accepted as JSON numbers or numeric strings.
type addExpenseBody struct {
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Split       splitBody   `json:"split"`
}

// decodeJSON reads a single JSON object, rejecting unknown fields, trailing
// data and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadJSON)
	}
	return nil
}

// toRequest validates the body shape and converts it to a service request.
// Business rules are left to the service.
func (b addExpenseBody) toRequest(tripID, payerID string) (services.AddExpenseRequest, error) {
	amount, err := core.ParseAmount(b.Amount.String())
	if err != nil {
		return services.AddExpenseRequest{}, err
	}
	policy, err := core.ParsePolicy(b.Split.Policy)
	if err != nil {
		return services.AddExpenseRequest{}, fmt.Errorf("%w: unknown policy %q", err, b.Split.Policy)
	}

	inputs := make([]split.Input, 0, len(b.Split.Shares))
	for _, s := range b.Split.Shares {
		v, err := decimal.NewFromString(s.Value.String())
		if err != nil {
			return services.AddExpenseRequest{}, fmt.Errorf("%w: bad value for %q", core.ErrInvalidSplit, s.MemberID)
		}
		inputs = append(inputs, split.Input{MemberID: strings.TrimSpace(s.MemberID), Value: v})
	}

	return services.AddExpenseRequest{
		TripID:           tripID,
		PayerID:          payerID,
		Description:      sanitizeInput(b.Description),
		OriginalAmount:   amount,
		OriginalCurrency: strings.TrimSpace(b.Currency),
		Policy:           policy,
		Inputs:           inputs,
	}, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
