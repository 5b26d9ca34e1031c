package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenlabs/warden/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <run-id>",
		Short: "Verify a run's hash chain",
		Long: `Verify the hash chain of a run's audit log.

Every event's hash is recomputed from the stored row and checked
against its successor's prev_hash. Any mutation, insertion, or
reordering surfaces as a break at the first failing link.

Exits 0 when the chain verifies, 1 when it is broken.

Example:
  warden verify 1f6b... --db ./warden.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runVerify(opts *VerifyOptions, runID string, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	// Look up the run first so a typo'd ID is not reported as an
	// empty chain that trivially verifies.
	if _, err := st.GetRun(ctx, runID); err != nil {
		return WrapExitError(ExitCommandError, "run lookup failed", err)
	}

	report, err := st.VerifyChain(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "chain verification failed", err)
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if report.OK {
		if opts.Format == "json" {
			return out.Success(report)
		}
		return out.Success(fmt.Sprintf("chain OK: %d events", report.Events))
	}

	msg := fmt.Sprintf("chain broken at seq %d (%d sound events)", report.BreakAt, report.Events)
	_ = out.Error("E_CHAIN_BROKEN", msg, report)
	return NewExitError(ExitFailure, fmt.Sprintf("run %s: %s", runID, msg))
}
