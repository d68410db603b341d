// Package ledger derives per-member net balances from a trip's expenses.
//
// A positive balance means the member is owed money; a negative balance
// means they owe. Over a roster that contains every payer and split member
// the balances always sum to zero.
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

// ComputeBalances credits each payer with the full canonical amount and
// debits every split member with their share. The payer's own split is
// debited as well, so a payer ends at +total minus their share.
func ComputeBalances(members []core.Member, expenses []core.Expense) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(members))
	for _, m := range members {
		balances[m.ID] = decimal.Zero
	}

	for _, e := range expenses {
		if _, ok := balances[e.PayerID]; !ok {
			return nil, fmt.Errorf("%w: payer %s of expense %s", core.ErrUnknownMember, e.PayerID, e.ID)
		}
		balances[e.PayerID] = balances[e.PayerID].Add(e.CanonicalAmount)

		for _, s := range e.Splits {
			if _, ok := balances[s.MemberID]; !ok {
				return nil, fmt.Errorf("%w: split member %s of expense %s", core.ErrUnknownMember, s.MemberID, e.ID)
			}
			balances[s.MemberID] = balances[s.MemberID].Sub(s.Amount)
		}
	}
	return balances, nil
}

// Standing is one member's position.
type Standing struct {
	MemberID string
	Amount   decimal.Decimal // absolute value
}

type Standings struct {
	Owed    []Standing // positive balances
	Owing   []Standing // negative balances
	Settled []string
}

// Summarize groups balances into creditors, debtors and settled members.
// Each group is ordered by amount descending, then by member ID.
func Summarize(balances map[string]decimal.Decimal) Standings {
	var s Standings
	for id, amt := range balances {
		switch amt.Sign() {
		case 1:
			s.Owed = append(s.Owed, Standing{MemberID: id, Amount: amt})
		case -1:
			s.Owing = append(s.Owing, Standing{MemberID: id, Amount: amt.Abs()})
		default:
			s.Settled = append(s.Settled, id)
		}
	}
	byMagnitude(s.Owed)
	byMagnitude(s.Owing)
	sort.Strings(s.Settled)
	return s
}

func byMagnitude(list []Standing) {
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Amount.Cmp(list[j].Amount); c != 0 {
			return c > 0
		}
		return list[i].MemberID < list[j].MemberID
	})
}

// Total sums balances; zero for a closed roster.
func Total(balances map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range balances {
		sum = sum.Add(b)
	}
	return sum
}
