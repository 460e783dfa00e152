package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ambit-run/ambit/internal/config"
	"github.com/ambit-run/ambit/internal/durable"
	"github.com/ambit-run/ambit/internal/examples/signup"
	"github.com/ambit-run/ambit/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	ConfigPath string
	FlowID     string
	Name       string
	Email      string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or continue a signup flow",
		Long: `Start (or replay) the example signup flow against a durable log.

Recovery runs first, re-scheduling any flow left incomplete by a prior
crash. The named flow is then driven from its beginning: already-
completed steps replay instantly from the log, and execution continues
from the first incomplete one. If the flow reaches the confirmation
await-step it pauses there; run 'ambit signal' to unblock it.

The database path comes from --db or from the database_path set in
--config; one of the two is required, and --db always overrides whatever
the config file says. Recover-on-startup defaults from --config if
given, falling back to the built-in default (enabled) otherwise.

Example:
  ambit run --db ./ambit.db --flow signup-1 --name Ada --email ada@example.com
  ambit run --config ./ambit.yaml --flow signup-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides --config)")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE or YAML config file")
	cmd.Flags().StringVar(&opts.FlowID, "flow", "", "flow id (generated if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "Ada Lovelace", "signup user name")
	cmd.Flags().StringVar(&opts.Email, "email", "ada@example.com", "signup user email")

	return cmd
}

func resolveConfig(opts *RunOptions) (config.Config, error) {
	cfg := config.Default()
	// The database path has no built-in default here: it comes from --db
	// or from the config file.
	cfg.DatabasePath = ""
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	if cfg.DatabasePath == "" {
		return config.Config{}, fmt.Errorf("no database path given: pass --db or set database_path in --config")
	}
	return cfg, nil
}

func runSignup(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := resolveConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve configuration", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	engine := durable.New(st, durable.WithLogger(logger))
	signup.Register(engine)

	ctx := cmd.Context()

	if cfg.RecoverOnStartup {
		if err := engine.RecoverIncompleteFlows(ctx); err != nil {
			slog.Warn("recovery failed", "error", err)
		}
	}

	flowID := opts.FlowID
	if flowID == "" {
		flowID = engine.NewFlowID()
	}

	handle, err := engine.NewHandle(flowID, signup.ClassName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create flow handle", err)
	}

	user := signup.User{Name: opts.Name, Email: opts.Email}
	result, err := signup.Start(ctx, handle, user)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if durable.IsFlowPause(err) {
		return formatter.Success(map[string]string{
			"flow_id": flowID,
			"status":  "waiting_for_signal",
			"message": fmt.Sprintf("flow %s is waiting for email confirmation; run 'ambit signal --db %s --flow %s'", flowID, cfg.DatabasePath, flowID),
		})
	}
	if err != nil {
		return WrapExitError(ExitFailure, "flow failed", err)
	}

	return formatter.Success(map[string]string{
		"flow_id": flowID,
		"status":  "complete",
		"result":  result,
	})
}
