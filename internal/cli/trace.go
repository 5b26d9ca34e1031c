package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlabs/warden/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Export a run's audit timeline",
		Long: `Export the full audit bundle for a run: the run and mission
records, the event chain, its verification report, and the raw
telemetry samples.

Text output prints a one-line-per-event timeline; JSON output emits
the complete bundle for downstream tooling.

Exits 0 when the chain verifies, 1 when it is broken.

Example:
  warden trace 1f6b... --db ./warden.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	bundle, err := st.ExportAudit(cmd.Context(), runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to export audit bundle", err)
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		if err := out.Success(bundle); err != nil {
			return err
		}
	} else {
		printTimeline(out, bundle)
	}

	if !bundle.Chain.OK {
		return NewExitError(ExitFailure,
			fmt.Sprintf("run %s: chain broken at seq %d", runID, bundle.Chain.BreakAt))
	}
	return nil
}

func printTimeline(out *OutputFormatter, bundle store.AuditBundle) {
	w := out.Writer
	fmt.Fprintf(w, "run %s  mission %q  status=%s\n",
		bundle.Run.ID, bundle.Mission.Title, bundle.Run.Status)
	for _, e := range bundle.Events {
		fmt.Fprintf(w, "%5d  %s  %-10s  %s\n",
			e.Seq, e.TS.UTC().Format(time.RFC3339), e.Type, shortHash(e.Hash))
	}
	if bundle.Chain.OK {
		fmt.Fprintf(w, "chain OK: %d events, %d telemetry samples\n",
			bundle.Chain.Events, len(bundle.Telemetry))
	} else {
		fmt.Fprintf(w, "chain BROKEN at seq %d\n", bundle.Chain.BreakAt)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
