package ledger

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines shown around each hunk.
const diffContext = 3

// Diff returns a unified diff from original to modified with a/ and b/
// headers. Identical inputs produce an empty string.
func Diff(original, modified, filename string) string {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(original),
		B:        splitLines(modified),
		FromFile: "a/" + filename,
		ToFile:   "b/" + filename,
		Context:  diffContext,
	})
	if err != nil {
		// Only reachable on a failing writer; the builder never fails.
		return ""
	}
	return out
}

// splitLines splits s into newline-terminated lines. A missing final newline
// is added so every diff line stays on its own line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	lines[len(lines)-1] += "\n"
	return lines
}
