package ledger

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
)

func TestDiffHeadersAndHunks(t *testing.T) {
	original := "alpha\nbeta\ngamma\n"
	modified := "alpha\nBETA\ngamma\ndelta\n"

	got := Diff(original, modified, "f")

	for _, want := range []string{"--- a/f\n", "+++ b/f\n", "@@ ", "-beta\n", "+BETA\n", "+delta\n", " alpha\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("diff missing %q:\n%s", want, got)
		}
	}
}

func TestDiffIdentical(t *testing.T) {
	if got := Diff("same\n", "same\n", "f"); got != "" {
		t.Errorf("Diff(identical) = %q, want empty", got)
	}
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+\d+(?:,\d+)? @@`)

// parseHunkHeader returns the old-file start and length of a hunk.
func parseHunkHeader(line string) (start, length int, ok bool) {
	m := hunkHeader.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	start, _ = strconv.Atoi(m[1])
	length = 1
	if m[2] != "" {
		length, _ = strconv.Atoi(m[2])
	}
	return start, length, true
}

// applyUnified rebuilds the modified text from original and a unified diff.
func applyUnified(t *testing.T, original, diff string) string {
	t.Helper()
	src := strings.SplitAfter(original, "\n")
	var out []string
	pos := 0

	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case line == "", strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
		case strings.HasPrefix(line, "@@ "):
			oldStart, oldLen, ok := parseHunkHeader(line)
			if !ok {
				t.Fatalf("bad hunk header %q", line)
			}
			target := oldStart - 1
			if oldLen == 0 {
				target = oldStart
			}
			for pos < target {
				out = append(out, src[pos])
				pos++
			}
		case strings.HasPrefix(line, " "):
			if src[pos] != line[1:] {
				t.Fatalf("context mismatch at %d: %q vs %q", pos, src[pos], line[1:])
			}
			out = append(out, src[pos])
			pos++
		case strings.HasPrefix(line, "-"):
			if src[pos] != line[1:] {
				t.Fatalf("removed line mismatch at %d: %q vs %q", pos, src[pos], line[1:])
			}
			pos++
		case strings.HasPrefix(line, "+"):
			out = append(out, line[1:])
		}
	}
	out = append(out, src[pos:]...)
	return strings.Join(out, "")
}

func TestDiffRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		original string
		modified string
	}{
		{"edit middle", "a\nb\nc\nd\ne\nf\ng\nh\n", "a\nb\nc\nD\ne\nf\ng\nh\n"},
		{"append", "a\nb\n", "a\nb\nc\n"},
		{"delete first", "a\nb\nc\n", "b\nc\n"},
		{"two hunks", "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n", "one\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\ntwelve\n"},
		{"from empty", "", "x\ny\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := Diff(tt.original, tt.modified, "f")
			got := applyUnified(t, tt.original, diff)
			if got != tt.modified {
				t.Errorf("round trip mismatch\ndiff:\n%s\ngot:  %q\nwant: %q", diff, got, tt.modified)
			}
		})
	}
}
