package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambit-run/ambit/internal/durable"
	"github.com/ambit-run/ambit/internal/examples/signup"
	"github.com/ambit-run/ambit/internal/store"
)

// SignalOptions holds flags for the signal command.
type SignalOptions struct {
	*RootOptions
	Database    string
	FlowID      string
	ConfirmedAt string
}

// NewSignalCommand creates the signal command.
func NewSignalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Deliver a confirmation signal and resume the await-step",
		Long: `Deliver a confirmation timestamp to a flow waiting at its
await-step and resume it immediately.

The Rendezvous Registry the dispatcher consumes signals from is
process-local: a signal delivered by a separate process never reaches a
different process's in-memory registry. This command therefore performs
signal-then-resume in one invocation, matching how an embedder's own
process would call handle.Signal followed by handle.Resume.

Example:
  ambit signal --db ./ambit.db --flow signup-1 --confirmed-at 2025-01-01T00:00:00Z`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowID, "flow", "", "flow id to signal (required)")
	_ = cmd.MarkFlagRequired("flow")
	cmd.Flags().StringVar(&opts.ConfirmedAt, "confirmed-at", "", "confirmation timestamp, RFC3339 (defaults to now)")

	return cmd
}

func runSignal(opts *SignalOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	confirmedAt := time.Now().UTC()
	if opts.ConfirmedAt != "" {
		parsed, err := time.Parse(time.RFC3339, opts.ConfirmedAt)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --confirmed-at", err)
		}
		confirmedAt = parsed
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	engine := durable.New(st, durable.WithLogger(logger))
	signup.Register(engine)

	handle, err := engine.NewHandle(opts.FlowID, signup.ClassName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create flow handle", err)
	}

	ctx := cmd.Context()
	result, err := signup.Confirm(ctx, handle, confirmedAt)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to resume flow %s", opts.FlowID), err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(map[string]string{
		"flow_id":      opts.FlowID,
		"status":       "confirmed",
		"confirmed_at": result,
	})
}
