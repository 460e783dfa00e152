package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ambit-run/ambit/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	FlowID   string
}

// TraceRow is one line of a flow's timeline, shaped for output formatting.
type TraceRow struct {
	Step       int    `json:"step"`
	Timestamp  string `json:"timestamp"`
	ClassName  string `json:"class_name"`
	MethodName string `json:"method_name"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	DelayMS    *int64 `json:"delay_ms,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the logged timeline for a flow",
		Long: `Prints every row logged for a flow, ordered by step.

Step 0 is the flow-entry row; it stays Pending across retries and only
turns Complete once every nested step the flow body dispatches has
itself completed.

Example:
  ambit trace --db ./ambit.db --flow signup-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowID, "flow", "", "flow id to trace (required)")
	_ = cmd.MarkFlagRequired("flow")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	rows, err := st.GetFlowRows(ctx, opts.FlowID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow timeline", err)
	}
	if len(rows) == 0 {
		return NewExitError(ExitCommandError, "no rows logged for flow "+opts.FlowID)
	}

	trace := make([]TraceRow, len(rows))
	for i, inv := range rows {
		trace[i] = TraceRow{
			Step:       inv.Step,
			Timestamp:  time.UnixMilli(inv.Timestamp).UTC().Format(time.RFC3339),
			ClassName:  inv.ClassName,
			MethodName: inv.MethodName,
			Status:     string(inv.Status),
			Attempts:   inv.Attempts,
			DelayMS:    inv.DelayMS,
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(map[string]any{
		"flow_id": opts.FlowID,
		"rows":    trace,
	})
}
