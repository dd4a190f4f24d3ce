package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/crewgate/internal/output"
)

func newDiffCmd() *cobra.Command {
	var name string
	var summaryOnly bool

	cmd := &cobra.Command{
		Use:   "diff <original> <modified>",
		Short: "Compare two versions of a file",
		Long: `Compare two versions of a file and print a unified diff with a/ and b/
headers, the same form agents record in the change log.

Examples:
  crewgate diff main.c.orig main.c
  crewgate diff --name src/parser.py before.py after.py
  crewgate diff --summary old.txt new.txt`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args[0], args[1], name, summaryOnly)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "File name for the diff headers (default: base name of <modified>)")
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "Show only line counts and similarity")
	return cmd
}

func runDiff(cmd *cobra.Command, originalPath, modifiedPath, name string, summaryOnly bool) error {
	original, err := os.ReadFile(originalPath)
	if err != nil {
		return fmt.Errorf("reading original: %w", err)
	}
	modified, err := os.ReadFile(modifiedPath)
	if err != nil {
		return fmt.Errorf("reading modified: %w", err)
	}
	if name == "" {
		name = filepath.Base(modifiedPath)
	}

	diffRes := output.ComputeDiff(originalPath, string(original), name, string(modified))

	f, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	return f.Output(diffResult{DiffResult: diffRes, summaryOnly: summaryOnly})
}

type diffResult struct {
	output.DiffResult
	summaryOnly bool
}

func (r diffResult) JSON() interface{} { return r.DiffResult }

func (r diffResult) Text(w io.Writer) error {
	s := newStyler(w)
	fmt.Fprintf(w, "Comparing %s vs %s:\n", r.Name1, r.Name2)
	fmt.Fprintf(w, "  Lines: %d vs %d (+%d -%d)\n", r.LineCount1, r.LineCount2, r.LinesAdded, r.LinesRemoved)
	fmt.Fprintf(w, "  Similarity: %.1f%%\n", r.Similarity*100)

	if r.summaryOnly {
		return nil
	}
	if r.UnifiedDiff == "" {
		fmt.Fprintln(w, s.muted("\nNo differences."))
		return nil
	}

	fmt.Fprintln(w)
	for _, line := range strings.SplitAfter(r.UnifiedDiff, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(w, s.fg(colorAccent, line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(w, s.muted(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(w, s.fg(colorOK, line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(w, s.fg(colorError, line))
		default:
			fmt.Fprint(w, line)
		}
	}
	return nil
}
