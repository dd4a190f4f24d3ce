package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/crewgate/internal/config"
	"github.com/Dicklesworthstone/crewgate/internal/logging"
	"github.com/Dicklesworthstone/crewgate/internal/output"
)

var (
	cfgFile      string
	cfg          *config.Config
	logger       *slog.Logger
	jsonOutput   bool
	formatOutput string

	// Build information - set by goreleaser via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

// ExitError carries a process exit code without an error message, for
// commands whose result (a failed build) is already printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crewgate",
		Short: "Coordinate token budgets and shared build state for a crew of coding agents",
		Long: `crewgate keeps a crew of coding agents inside their token limits and gives
them one shared view of the build.

  Rate limiting   tokens per agent over a sliding 60 second window
  Budgets         cumulative usage with warning (80%) and critical (95%) levels
  Build ledger    compiler/test diagnostics agents claim and fix, mirrored to
                  BUILD_STATUS.md and CHANGES.md in the workspace

Quick Start:
  crewgate config init                   # Write ~/.config/crewgate/config.toml
  crewgate build --tool make -- make     # Run a build and publish diagnostics
  crewgate watch --tool pytest -- pytest # Rebuild whenever sources change
  crewgate show status                   # Render the current build status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for completion and version
			if cmd.Name() == "completion" || cmd.Name() == "version" {
				return nil
			}

			var err error
			cfg, err = config.LoadOrDefault(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger = logging.New(cfg.Logging, os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/crewgate/config.toml)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	root.PersistentFlags().StringVar(&formatOutput, "format", "text", "Output format: text, json or yaml")

	root.AddCommand(
		// Build ledger
		newBuildCmd(),
		newWatchCmd(),
		newClassifyCmd(),
		newShowCmd(),
		newDiffCmd(),

		// Token accounting
		newBudgetCmd(),

		// Setup
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	output.PrintError(err, IsJSONOutput())
	return 1
}

// IsJSONOutput reports whether JSON output was requested.
func IsJSONOutput() bool {
	return jsonOutput || formatOutput == string(output.FormatJSON)
}

// newFormatter builds the output formatter for cmd from the global flags.
func newFormatter(cmd *cobra.Command) (*output.Formatter, error) {
	format, err := output.ParseFormat(formatOutput)
	if err != nil {
		return nil, err
	}
	if jsonOutput {
		format = output.FormatJSON
	}
	return output.New(output.WithFormat(format), output.WithWriter(cmd.OutOrStdout())), nil
}

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if IsJSONOutput() {
				return output.WriteJSON(w, output.VersionResponse{Version: Version, Commit: Commit, Date: Date}, true)
			}
			if short {
				fmt.Fprintln(w, Version)
				return nil
			}
			fmt.Fprintf(w, "crewgate version %s\n", Version)
			fmt.Fprintf(w, "  commit:  %s\n", Commit)
			fmt.Fprintf(w, "  built:   %s\n", Date)
			fmt.Fprintf(w, "  builder: %s\n", BuiltBy)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefault()
			if errors.Is(err, config.ErrConfigExists) {
				return output.NewCLIError("config file already exists").
					WithCause(config.DefaultPath()).
					WithHint("edit it, or remove it and run 'crewgate config init' again")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintln(w, "# Using default configuration (no config file found)")
				fmt.Fprintln(w)
			}
			return config.Print(cfg, w)
		},
	})

	return cmd
}
