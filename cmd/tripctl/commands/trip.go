package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tripsplit/internal/core"
)

// trip create <name> --member id[:name]...
func tripCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trip",
		Short: "Create and inspect trips",
	}

	var members []string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a trip, optionally with its roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster := make([]core.Member, len(members))
			for i, entry := range members {
				id, name, _ := strings.Cut(entry, ":")
				roster[i] = core.Member{ID: id, Name: name}
			}
			trip, err := e.svc.CreateTrip(cmd.Context(), args[0], roster...)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", trip.ID)
			return nil
		},
	}
	create.Flags().StringArrayVarP(&members, "member", "m", nil, "member as id or id:name (repeatable)")

	show := &cobra.Command{
		Use:   "show <tripID>",
		Short: "Show a trip and its roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trip, err := e.svc.GetTrip(ctx, args[0])
			if err != nil {
				return err
			}
			roster, err := e.svc.ListMembers(ctx, trip.ID)
			if err != nil {
				return err
			}
			printf(cmd, "%s  %s\n", trip.ID, trip.Name)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range roster {
				fmt.Fprintf(tw, "  %s\t%s\n", m.ID, m.Name)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

// member add <tripID> <memberID> [--name]
func memberCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage trip members",
	}

	var name string
	add := &cobra.Command{
		Use:   "add <tripID> <memberID>",
		Short: "Append a member to a trip roster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := e.svc.AddMember(cmd.Context(), args[0], args[1], name)
			if err != nil {
				return err
			}
			printf(cmd, "added %s (%s)\n", m.ID, m.Name)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name (defaults to the member ID)")

	cmd.AddCommand(add)
	return cmd
}
