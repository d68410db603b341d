package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// rate <currency>
func rateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <currency>",
		Short: "Show the rate of a currency against the accounting currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.ToUpper(args[0])
			r, err := e.svc.GetRate(cmd.Context(), code)
			if err != nil {
				return err
			}
			printf(cmd, "1 %s = %s %s\n", e.svc.AccountingCurrency(), r.String(), code)
			return nil
		},
	}
}

// rates refresh
func ratesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage the exchange rate table",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Fetch the latest rates from the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.svc.RefreshRates(cmd.Context()); err != nil {
				return err
			}
			codes, err := e.svc.ListCurrencies(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd, "refreshed %d currencies\n", len(codes)-1)
			return nil
		},
	})
	return cmd
}

// currencies
func currenciesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "currencies",
		Short: "List convertible currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, err := e.svc.ListCurrencies(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", strings.Join(codes, " "))
			return nil
		},
	}
}

// audit [--trip] [--limit] [--offset]
func auditCmd(e *env) *cobra.Command {
	var (
		tripID string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := e.svc.ListAudit(cmd.Context(), tripID, limit, offset)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTRIP\tMEMBER\tACTION\tDETAILS")
			for _, a := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					a.CreatedAt.Format("2006-01-02 15:04:05"), a.TripID, a.MemberID, a.Action, a.Details)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&tripID, "trip", "", "only entries of this trip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}
