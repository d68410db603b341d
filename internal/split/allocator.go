// Package split divides a canonical expense amount among trip members.
//
// Equal and ratio allocations always sum exactly to the total: every member
// gets the floored cent share and the leftover cents are handed out one at a
// time in roster order. Fixed allocations are taken as given and only checked
// against the total within one cent.
package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

// Input carries the per-member value for ratio (weight) and fixed (amount)
// policies. Equal splits ignore it.
type Input struct {
	MemberID string
	Value    decimal.Decimal
}

// Allocate returns one split per roster member in roster order.
func Allocate(total decimal.Decimal, roster []string, policy core.SplitPolicy, inputs []Input) ([]core.Split, error) {
	if !total.IsPositive() {
		return nil, core.ErrInvalidAmount
	}
	total = core.RoundMoney(total)
	if err := checkRoster(roster); err != nil {
		return nil, err
	}

	switch policy {
	case core.PolicyEqual:
		return equal(total, roster), nil
	case core.PolicyRatio:
		weights, err := collect(roster, inputs)
		if err != nil {
			return nil, err
		}
		return ratio(total, roster, weights)
	case core.PolicyFixed:
		amounts, err := collect(roster, inputs)
		if err != nil {
			return nil, err
		}
		return fixed(total, roster, amounts)
	}
	return nil, fmt.Errorf("%w: unknown policy %q", core.ErrInvalidSplit, policy)
}

func checkRoster(roster []string) error {
	if len(roster) == 0 {
		return fmt.Errorf("%w: empty roster", core.ErrInvalidSplit)
	}
	seen := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		if id == "" {
			return fmt.Errorf("%w: empty member id", core.ErrInvalidSplit)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate member %s", core.ErrInvalidSplit, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// collect maps inputs onto the roster. Every member needs exactly one
// non-negative value and inputs for non-members are rejected.
func collect(roster []string, inputs []Input) (map[string]decimal.Decimal, error) {
	members := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		members[id] = struct{}{}
	}
	values := make(map[string]decimal.Decimal, len(inputs))
	for _, in := range inputs {
		if _, ok := members[in.MemberID]; !ok {
			return nil, fmt.Errorf("%w: %s is not in the roster", core.ErrInvalidSplit, in.MemberID)
		}
		if _, dup := values[in.MemberID]; dup {
			return nil, fmt.Errorf("%w: duplicate input for %s", core.ErrInvalidSplit, in.MemberID)
		}
		if in.Value.IsNegative() {
			return nil, fmt.Errorf("%w: negative value for %s", core.ErrInvalidSplit, in.MemberID)
		}
		values[in.MemberID] = in.Value
	}
	for _, id := range roster {
		if _, ok := values[id]; !ok {
			return nil, fmt.Errorf("%w: missing value for %s", core.ErrInvalidSplit, id)
		}
	}
	return values, nil
}

func equal(total decimal.Decimal, roster []string) []core.Split {
	cents := core.ToCents(total)
	n := int64(len(roster))
	base, rem := cents/n, cents%n

	out := make([]core.Split, len(roster))
	for i, id := range roster {
		c := base
		if int64(i) < rem {
			c++
		}
		out[i] = core.Split{MemberID: id, Amount: core.FromCents(c), Policy: core.PolicyEqual}
	}
	return out
}

func ratio(total decimal.Decimal, roster []string, weights map[string]decimal.Decimal) ([]core.Split, error) {
	sum := decimal.Zero
	for _, id := range roster {
		sum = sum.Add(weights[id])
	}
	if !sum.IsPositive() {
		return nil, fmt.Errorf("%w: weights sum to zero", core.ErrInvalidSplit)
	}

	totalCents := decimal.NewFromInt(core.ToCents(total))
	cents := make([]int64, len(roster))
	var allocated int64
	for i, id := range roster {
		// floor(total * w / sum) in cents; QuoRem truncates exactly.
		q, _ := totalCents.Mul(weights[id]).QuoRem(sum, 0)
		c := q.IntPart()
		cents[i] = c
		allocated += c
	}

	// Leftover is below the number of positive weights, so one pass suffices.
	left := core.ToCents(total) - allocated
	for i, id := range roster {
		if left == 0 {
			break
		}
		if weights[id].IsPositive() {
			cents[i]++
			left--
		}
	}

	out := make([]core.Split, len(roster))
	for i, id := range roster {
		w := weights[id]
		out[i] = core.Split{MemberID: id, Amount: core.FromCents(cents[i]), Policy: core.PolicyRatio, Ratio: &w}
	}
	return out, nil
}

func fixed(total decimal.Decimal, roster []string, amounts map[string]decimal.Decimal) ([]core.Split, error) {
	out := make([]core.Split, len(roster))
	sum := decimal.Zero
	for i, id := range roster {
		amt := core.RoundMoney(amounts[id])
		sum = sum.Add(amt)
		out[i] = core.Split{MemberID: id, Amount: amt, Policy: core.PolicyFixed}
	}
	if sum.Sub(total).Abs().GreaterThan(core.Tolerance) {
		return nil, fmt.Errorf("%w: shares sum to %s, expected %s",
			core.ErrSplitMismatch, core.FormatMoney(sum), core.FormatMoney(total))
	}
	return out, nil
}
