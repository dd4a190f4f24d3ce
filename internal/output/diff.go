package output

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Dicklesworthstone/crewgate/internal/ledger"
)

// DiffResult summarizes the difference between two texts.
type DiffResult struct {
	Name1        string  `json:"name1" yaml:"name1"`
	Name2        string  `json:"name2" yaml:"name2"`
	LineCount1   int     `json:"line_count1" yaml:"line_count1"`
	LineCount2   int     `json:"line_count2" yaml:"line_count2"`
	LinesAdded   int     `json:"lines_added" yaml:"lines_added"`
	LinesRemoved int     `json:"lines_removed" yaml:"lines_removed"`
	Similarity   float64 `json:"similarity" yaml:"similarity"`
	UnifiedDiff  string  `json:"unified_diff" yaml:"unified_diff"`
}

// ComputeDiff compares content1 and content2. Similarity is one minus the
// character edit distance over the longer text; two empty texts are identical.
// The unified diff uses name2 as the file name.
func ComputeDiff(name1, content1, name2, content2 string) DiffResult {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(content1, content2)
	lineDiffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	res := DiffResult{
		Name1:      name1,
		Name2:      name2,
		LineCount1: countLines(content1),
		LineCount2: countLines(content2),
		Similarity: 1,
	}
	for _, d := range lineDiffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			res.LinesAdded += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			res.LinesRemoved += countLines(d.Text)
		}
	}

	longest := max(utf8.RuneCountInString(content1), utf8.RuneCountInString(content2))
	if longest > 0 {
		distance := dmp.DiffLevenshtein(dmp.DiffMain(content1, content2, false))
		res.Similarity = 1 - float64(distance)/float64(longest)
	}

	res.UnifiedDiff = ledger.Diff(content1, content2, name2)
	return res
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
