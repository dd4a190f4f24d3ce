package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// statusCellWidth bounds the message column of the status table.
const statusCellWidth = 80

// renderStatusLocked builds the status mirror document. Caller must hold l.mu.
func (l *Ledger) renderStatusLocked() string {
	var b strings.Builder

	b.WriteString("# Build Status\n\n")
	fmt.Fprintf(&b, "- **Status:** %s\n", l.status)
	fmt.Fprintf(&b, "- **Last updated:** %s\n", formatTime(l.updatedAt))
	if l.tool != "" {
		fmt.Fprintf(&b, "- **Tool:** %s (exit %d)\n", l.tool, l.exitCode)
	}

	open := 0
	for _, d := range l.diagnostics {
		if d.Open() {
			open++
		}
	}
	fmt.Fprintf(&b, "\n## Diagnostics (%d total, %d unclaimed)\n\n", len(l.diagnostics), open)

	if len(l.diagnostics) == 0 {
		b.WriteString("No diagnostics.\n")
	} else {
		b.WriteString("| # | File | Line | Severity | Message | Claimed by | Fixed |\n")
		b.WriteString("|---|------|------|----------|---------|------------|-------|\n")
		for i, d := range l.diagnostics {
			claimant := d.ClaimedBy
			if claimant == "" {
				claimant = "-"
			}
			fixed := "no"
			if d.Fixed {
				fixed = "yes"
			}
			fmt.Fprintf(&b, "| %d | %s | %d | %s | %s | %s | %s |\n",
				i, tableCell(d.File), d.Line, d.Severity, tableCell(d.Message), tableCell(claimant), fixed)
		}
	}

	b.WriteString("\n## Last Output\n\n")
	if l.lastOutput == "" {
		b.WriteString("No output recorded.\n")
	} else {
		fence := codeFence(l.lastOutput)
		b.WriteString(fence + "\n")
		b.WriteString(strings.TrimRight(l.lastOutput, "\n"))
		b.WriteString("\n" + fence + "\n")
	}
	return b.String()
}

// renderChangesLocked builds the change-log mirror document, oldest patch
// first. Caller must hold l.mu.
func (l *Ledger) renderChangesLocked() string {
	var b strings.Builder

	b.WriteString("# Change Log\n\n")
	fmt.Fprintf(&b, "Showing the last %d patches (retention %d).\n", len(l.patches), l.opts.MaxPatches)

	for _, p := range l.patches {
		fmt.Fprintf(&b, "\n## %s\n\n", p.File)
		fmt.Fprintf(&b, "- **Author:** %s\n", p.Author)
		fmt.Fprintf(&b, "- **Time:** %s\n", formatTime(p.Timestamp))
		if p.Description != "" {
			fmt.Fprintf(&b, "- **Description:** %s\n", p.Description)
		}
		fence := codeFence(p.DiffContent)
		b.WriteString("\n" + fence + "diff\n")
		b.WriteString(strings.TrimRight(p.DiffContent, "\n"))
		b.WriteString("\n" + fence + "\n")
	}
	return b.String()
}

// codeFence returns a backtick fence longer than any backtick run in
// content, and at least three long.
func codeFence(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// tableCell makes s safe for a markdown table cell and bounds its width.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, statusCellWidth, "...")
}

func (l *Ledger) writeStatusLocked() {
	path := l.StatusPath()
	if path == "" {
		return
	}
	if err := writeFileAtomic(path, []byte(l.renderStatusLocked())); err != nil {
		l.logger.Warn("status mirror not updated", "path", path, "error", err)
	}
}

func (l *Ledger) writeChangesLocked() {
	path := l.ChangesPath()
	if path == "" {
		return
	}
	if err := writeFileAtomic(path, []byte(l.renderChangesLocked())); err != nil {
		l.logger.Warn("change log mirror not updated", "path", path, "error", err)
	}
}

// writeFileAtomic replaces path via a temp file in the same directory, so
// readers never observe a partially written document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
