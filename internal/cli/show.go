package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/crewgate/internal/output"
)

const (
	defaultRenderWidth = 100
	maxRenderWidth     = 120
)

func newShowCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:       "show [status|changes]",
		Short:     "Render a workspace mirror document",
		ValidArgs: []string{"status", "changes"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		Long: `Render the build status or change log document from the workspace.
Output is styled markdown on a terminal and raw markdown otherwise.

Examples:
  crewgate show
  crewgate show changes
  crewgate show status --raw | less`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := "status"
			if len(args) == 1 {
				doc = args[0]
			}
			file := cfg.Ledger.StatusFile
			if doc == "changes" {
				file = cfg.Ledger.ChangesFile
			}
			return runShow(cmd.OutOrStdout(), filepath.Join(cfg.Workspace, file), raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without styling")
	return cmd
}

func runShow(w io.Writer, path string, raw bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return output.NewCLIError("no document at " + path).WithHint("run 'crewgate build' to create it")
	}
	if err != nil {
		return err
	}

	if raw || !isTerminal(w) {
		_, err := w.Write(data)
		return err
	}

	rendered, err := renderMarkdown(string(data), terminalWidth(w))
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	fmt.Fprint(w, rendered)
	fmt.Fprintln(w, newStyler(w).muted(fmt.Sprintf("%s (%s)", path, formatBytes(int64(len(data))))))
	return nil
}

// renderMarkdown styles md for a terminal of the given width, picking the
// dark or light theme from the terminal background.
func renderMarkdown(md string, width int) (string, error) {
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultRenderWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultRenderWidth
	}
	return min(width, maxRenderWidth)
}
