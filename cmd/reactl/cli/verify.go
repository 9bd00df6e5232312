package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

type verifyOptions struct {
	*RootOptions
	Concurrency int
}

// NewVerifyCommand refolds histories in-process and compares them with the
// stored snapshots. Without an id every resource is verified.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &verifyOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "verify [id]",
		Short: "Verify resource snapshots and event digests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			var reports []observation.VerifyReport
			if len(args) == 1 {
				report, err := engine.Service.Verify(cmd.Context(), args[0])
				if err != nil {
					return lookupError("verify resource", err)
				}
				reports = append(reports, report)
			} else {
				reports, err = engine.Service.VerifyAll(cmd.Context(), opts.Concurrency)
				if err != nil {
					return WrapExitError(ExitCommandError, "verify resources", err)
				}
			}

			if opts.Format == "json" {
				if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tevents=%d\t%s\n", r.ResourceID, r.Events, verdict(r))
				}
			}
			for _, r := range reports {
				if len(r.TamperedEvents) > 0 {
					return WrapExitError(ExitFailure, "tampered events found", nil)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "resources verified in parallel")
	return cmd
}

func verdict(r observation.VerifyReport) string {
	switch {
	case len(r.TamperedEvents) > 0:
		return "tampered: " + strings.Join(r.TamperedEvents, ",")
	case r.Repaired:
		return "repaired"
	default:
		return "ok"
	}
}
