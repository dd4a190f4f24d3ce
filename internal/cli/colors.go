package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Status palette (Catppuccin Mocha).
var (
	colorOK      = lipgloss.Color("#a6e3a1")
	colorWarning = lipgloss.Color("#f9e2af")
	colorError   = lipgloss.Color("#f38ba8")
	colorMuted   = lipgloss.Color("#6c7086")
	colorAccent  = lipgloss.Color("#89b4fa")
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// statusColor maps build and budget states onto the palette.
func statusColor(status string) lipgloss.Color {
	switch strings.TrimSpace(status) {
	case "success", "ok":
		return colorOK
	case "warning", "running":
		return colorWarning
	case "failed", "critical", "error":
		return colorError
	case "note":
		return colorAccent
	default:
		return colorMuted
	}
}

// styler colors text only when writing to a terminal.
type styler struct {
	enabled bool
}

func newStyler(w io.Writer) styler {
	return styler{enabled: isTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

func (s styler) status(status string) string {
	if !s.enabled {
		return status
	}
	return lipgloss.NewStyle().Foreground(statusColor(status)).Bold(true).Render(status)
}

func (s styler) fg(c lipgloss.Color, text string) string {
	if !s.enabled {
		return text
	}
	return lipgloss.NewStyle().Foreground(c).Render(text)
}

func (s styler) muted(text string) string {
	return s.fg(colorMuted, text)
}

// formatBytes formats bytes in a human-readable way (e.g., "1.5 KB")
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
