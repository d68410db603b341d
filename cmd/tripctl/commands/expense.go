package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/services"
	"tripsplit/internal/split"
)

func expenseCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Record and list expenses",
	}

	var (
		payer       string
		amount      string
		currency    string
		description string
		policy      string
		shares      []string
	)
	add := &cobra.Command{
		Use:   "add <tripID>",
		Short: "Record an expense paid by --payer",
		Example: `  tripctl expense add $TRIP --payer A --amount 90 --currency CAD --description dinner
  tripctl expense add $TRIP --payer A --amount 100 --policy ratio --share A=1 --share B=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			p, err := core.ParsePolicy(policy)
			if err != nil {
				return fmt.Errorf("--policy %q: %w", policy, err)
			}
			inputs, err := parseShares(shares)
			if err != nil {
				return err
			}
			if currency == "" {
				currency = e.svc.AccountingCurrency()
			}

			exp, err := e.svc.AddExpense(cmd.Context(), services.AddExpenseRequest{
				TripID:           args[0],
				PayerID:          payer,
				Description:      description,
				OriginalAmount:   amt,
				OriginalCurrency: currency,
				Policy:           p,
				Inputs:           inputs,
			})
			if err != nil {
				return err
			}
			printf(cmd, "%s  %s %s = %s %s (rate %s)\n", exp.ID,
				core.FormatMoney(exp.OriginalAmount), exp.OriginalCurrency,
				core.FormatMoney(exp.CanonicalAmount), e.svc.AccountingCurrency(),
				exp.ExchangeRate.String())
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range exp.Splits {
				fmt.Fprintf(tw, "  %s\t%s\n", s.MemberID, core.FormatMoney(s.Amount))
			}
			return tw.Flush()
		},
	}
	add.Flags().StringVar(&payer, "payer", "", "paying member ID")
	add.Flags().StringVar(&amount, "amount", "", "amount in --currency")
	add.Flags().StringVar(&currency, "currency", "", "ISO currency code (default: accounting currency)")
	add.Flags().StringVarP(&description, "description", "d", "", "what was paid for")
	add.Flags().StringVar(&policy, "policy", "equal", "split policy: equal, ratio or fixed")
	add.Flags().StringArrayVar(&shares, "share", nil, "member=value weight or amount (repeatable)")
	_ = add.MarkFlagRequired("payer")
	_ = add.MarkFlagRequired("amount")
	_ = add.MarkFlagRequired("description")

	list := &cobra.Command{
		Use:   "list <tripID>",
		Short: "List a trip's expenses, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expenses, err := e.svc.ListExpenses(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tPAYER\tDESCRIPTION\tORIGINAL\tAMOUNT")
			for _, x := range expenses {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\n",
					x.CreatedAt.Format("2006-01-02"), x.PayerID, x.Description,
					core.FormatMoney(x.OriginalAmount), x.OriginalCurrency,
					core.FormatMoney(x.CanonicalAmount))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// parseShares reads repeated member=value flags.
func parseShares(raw []string) ([]split.Input, error) {
	inputs := make([]split.Input, 0, len(raw))
	for _, s := range raw {
		id, value, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("--share %q: want member=value", s)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("--share %q: %w", s, err)
		}
		inputs = append(inputs, split.Input{MemberID: strings.TrimSpace(id), Value: v})
	}
	return inputs, nil
}

// balances <tripID>
func balancesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "balances <tripID>",
		Short: "Show who is owed and who owes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balances, err := e.svc.GetBalances(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			st := ledger.Summarize(balances)
			cur := e.svc.AccountingCurrency()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			for _, s := range st.Owed {
				fmt.Fprintf(tw, "%s\tis owed\t%s %s\t\n", s.MemberID, core.FormatMoney(s.Amount), cur)
			}
			for _, s := range st.Owing {
				fmt.Fprintf(tw, "%s\towes\t%s %s\t\n", s.MemberID, core.FormatMoney(s.Amount), cur)
			}
			for _, id := range st.Settled {
				fmt.Fprintf(tw, "%s\tsettled\t\t\n", id)
			}
			return tw.Flush()
		},
	}
}
