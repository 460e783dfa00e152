package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambit-run/ambit/internal/durable"
	"github.com/ambit-run/ambit/internal/examples/signup"
	"github.com/ambit-run/ambit/internal/store"
)

// RecoverOptions holds flags for the recover command.
type RecoverOptions struct {
	*RootOptions
	Database string
	Wait     time.Duration
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Re-schedule incomplete flows found in the log",
		Long: `Runs the Recovery Scheduler: every step-0 row not yet Complete is
re-driven from the beginning of its flow body, replaying whatever steps
are already logged and continuing from the first incomplete one.

This is what a host process calls once at startup; the CLI exposes it
standalone so recovery can be exercised and inspected without restarting
a whole service.

Example:
  ambit recover --db ./ambit.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 500*time.Millisecond, "time to let recovered flows make progress before exiting")

	return cmd
}

func runRecover(opts *RecoverOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	engine := durable.New(st, durable.WithLogger(logger))
	signup.Register(engine)

	ctx := cmd.Context()
	incomplete, err := st.GetIncompleteFlows(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list incomplete flows", err)
	}

	if err := engine.RecoverIncompleteFlows(ctx); err != nil {
		return WrapExitError(ExitFailure, "recovery failed", err)
	}

	time.Sleep(opts.Wait)

	flowIDs := make([]string, len(incomplete))
	for i, inv := range incomplete {
		flowIDs[i] = inv.FlowID
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(map[string]any{
		"status":     "recovered",
		"flow_count": len(flowIDs),
		"flow_ids":   flowIDs,
	})
}
