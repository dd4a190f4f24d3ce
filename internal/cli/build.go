package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/crewgate/internal/coordinator"
	"github.com/Dicklesworthstone/crewgate/internal/diagnostics"
	"github.com/Dicklesworthstone/crewgate/internal/output"
	"github.com/Dicklesworthstone/crewgate/internal/ratelimit"
)

func newBuildCmd() *cobra.Command {
	var tool string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "build [--tool NAME] -- <command> [args...]",
		Short: "Run a build or test command and publish its diagnostics",
		Long: `Run a build or test command, classify its output and replace the shared
diagnostic list. The status mirror in the workspace is rewritten.

The tool name selects the output parser (gcc, clang, make, python, pytest).
It defaults to the program name.

Examples:
  crewgate build --tool gcc -- gcc -Wall -c main.c
  crewgate build --tool make -- make -j8
  crewgate build --tool pytest -- python -m pytest -x
  crewgate build --json -- make test`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout > 0 {
				cfg.Runner.TimeoutSeconds = int(timeout.Seconds())
			}
			c := coordinator.New(cfg, logger)

			res, err := c.RunBuild(cmd.Context(), tool, args)
			if err != nil {
				return err
			}

			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			if err := f.Output(buildResult{BuildResult: res, summary: c.Ledger().Summary(), statusPath: c.Ledger().StatusPath()}); err != nil {
				return err
			}
			if res.Status == diagnostics.StatusFailed {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "Tool name used to pick the output parser (default: program name)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Override the configured command timeout")
	return cmd
}

type buildResult struct {
	coordinator.BuildResult
	summary    string
	statusPath string
}

func (r buildResult) JSON() interface{} {
	return struct {
		output.TimestampedResponse
		coordinator.BuildResult
		StatusFile string `json:"status_file,omitempty"`
	}{output.NewTimestamped(), r.BuildResult, r.statusPath}
}

func (r buildResult) Text(w io.Writer) error {
	s := newStyler(w)
	fmt.Fprintf(w, "Build %s (%s, exit %d) in %s\n",
		s.status(string(r.Status)), r.Tool, r.ExitCode, ratelimit.FormatDelay(r.Duration))
	if r.TimedOut {
		fmt.Fprintln(w, s.fg(colorError, "  command timed out"))
	}
	fmt.Fprintln(w, r.summary)
	if r.statusPath != "" {
		fmt.Fprintln(w, s.muted("Status written to "+r.statusPath))
	}
	return nil
}
