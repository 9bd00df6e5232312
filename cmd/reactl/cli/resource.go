package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

// NewResourceCommand prints the current projection of one resource.
func NewResourceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resource <id>",
		Short: "Show the current projection of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			resource, err := engine.Service.GetResource(cmd.Context(), args[0])
			if err != nil {
				return lookupError("read resource", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), resource)
			}
			printResource(cmd.OutOrStdout(), resource)
			return nil
		},
	}
}

// NewHistoryCommand dumps the ordered event history of one resource.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "List the events affecting a resource in append order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			events, err := engine.Service.History(cmd.Context(), args[0])
			if err != nil {
				return lookupError("read history", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tACTION\tQUANTITY\tTO\tDIGEST")
			for _, e := range events {
				quantity := "-"
				if e.ResourceQuantity != nil {
					quantity = e.ResourceQuantity.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Action, quantity, dash(e.ToResourceInventoriedAs), e.Digest)
			}
			return tw.Flush()
		},
	}
}

func printResource(w io.Writer, r observation.EconomicResource) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", r.ID)
	fmt.Fprintf(tw, "name\t%s\n", dash(r.Name))
	fmt.Fprintf(tw, "accounting\t%s\n", measureString(r.AccountingQuantity))
	fmt.Fprintf(tw, "onhand\t%s\n", measureString(r.OnhandQuantity))
	fmt.Fprintf(tw, "location\t%s\n", dash(r.CurrentLocation))
	fmt.Fprintf(tw, "state\t%s\n", dash(string(r.State)))
	fmt.Fprintf(tw, "classified\t%v\n", r.ClassifiedAs)
	fmt.Fprintf(tw, "revision\t%d\n", r.Revision)
	_ = tw.Flush()
}

func measureString(m *observation.Measure) string {
	if m == nil {
		return "-"
	}
	return m.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func lookupError(message string, err error) error {
	if errors.Is(err, observation.ErrNotFound) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}
