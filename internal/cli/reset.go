package cli

import (
	"github.com/spf13/cobra"

	"github.com/ambit-run/ambit/internal/store"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Database string
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the execution log",
		Long: `Administrative reset: drops and recreates the execution_log table.

Every row for every flow is destroyed. There is no undo; this is meant
for clearing out a scratch database between demo runs, never for
production use.

Example:
  ambit reset --db ./ambit.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.Reset(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to reset execution log", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(map[string]string{"status": "reset"})
}
