// Package commands implements tripctl, the admin CLI. Commands work directly
// against the configured store, the same one the server uses.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tripsplit/internal/cli"
	"tripsplit/internal/services"
)

// AppFactory opens the dependencies a command runs against.
type AppFactory func(ctx context.Context) (*cli.App, error)

type env struct {
	newApp AppFactory
	app    *cli.App
	svc    *services.ExpenseService
}

func Execute() error {
	return NewRootCommand(cli.Bootstrap).Execute()
}

// NewRootCommand builds the command tree; tests pass their own factory.
func NewRootCommand(newApp AppFactory) *cobra.Command {
	e := &env{newApp: newApp}

	root := &cobra.Command{
		Use:           "tripctl",
		Short:         "Manage trips, shared expenses and exchange rates",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.newApp(cmd.Context())
			if err != nil {
				return err
			}
			e.app = app
			e.svc, _ = app.NewExpenseService()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.app == nil {
				return nil
			}
			return e.app.Close()
		},
	}

	root.AddCommand(
		tripCmd(e),
		memberCmd(e),
		expenseCmd(e),
		balancesCmd(e),
		rateCmd(e),
		ratesCmd(e),
		currenciesCmd(e),
		auditCmd(e),
	)
	return root
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
