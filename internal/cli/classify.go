package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/crewgate/internal/diagnostics"
	"github.com/Dicklesworthstone/crewgate/internal/output"
)

const (
	locationWidth = 32
	messageWidth  = 100
)

func newClassifyCmd() *cobra.Command {
	var tool string
	var exitCode int

	cmd := &cobra.Command{
		Use:   "classify --tool NAME [--exit-code N] [file|-]",
		Short: "Parse saved tool output into diagnostics",
		Long: `Classify the output of a build or test command without running it.
Reads the named file, or stdin when none is given.

Examples:
  make 2>&1 | crewgate classify --tool make --exit-code $?
  crewgate classify --tool gcc --exit-code 1 build.log
  crewgate classify --tool pytest --exit-code 1 --format yaml test.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			status, diags := diagnostics.Classify(tool, text, exitCode)

			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.Output(classifyResult{output.ClassifyResponse{
				TimestampedResponse: output.NewTimestamped(),
				Tool:                tool,
				ExitCode:            exitCode,
				Status:              status,
				Diagnostics:         diags,
			}})
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "Tool that produced the output (gcc, clang, make, python, pytest)")
	cmd.Flags().IntVar(&exitCode, "exit-code", 0, "Exit code of the command")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

type classifyResult struct {
	output.ClassifyResponse
}

func (r classifyResult) JSON() interface{} { return r.ClassifyResponse }

func (r classifyResult) Text(w io.Writer) error {
	s := newStyler(w)
	fmt.Fprintf(w, "%s: %s (%s family, exit %d), %d diagnostics\n",
		r.Tool, s.status(string(r.Status)), diagnostics.FamilyOf(r.Tool), r.ExitCode, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		fmt.Fprintf(w, "  [%d] %s  %s  %s\n", i,
			runewidth.FillRight(runewidth.Truncate(location(d), locationWidth, "..."), locationWidth),
			s.status(runewidth.FillRight(string(d.Severity), 7)),
			output.Truncate(d.Message, messageWidth))
	}
	return nil
}

// location renders file:line[:col], omitting unknown parts.
func location(d diagnostics.Diagnostic) string {
	loc := d.File
	if d.Line > 0 {
		loc += ":" + strconv.Itoa(d.Line)
		if d.Column > 0 {
			loc += ":" + strconv.Itoa(d.Column)
		}
	}
	return loc
}
