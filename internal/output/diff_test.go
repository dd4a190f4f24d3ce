package output

import (
	"strings"
	"testing"
)

func TestComputeDiff_Identical(t *testing.T) {
	t.Parallel()

	res := ComputeDiff("a", "x\ny\n", "b", "x\ny\n")
	if res.Similarity != 1 {
		t.Errorf("Similarity = %v, want 1", res.Similarity)
	}
	if res.LinesAdded != 0 || res.LinesRemoved != 0 {
		t.Errorf("added/removed = %d/%d, want 0/0", res.LinesAdded, res.LinesRemoved)
	}
	if res.UnifiedDiff != "" {
		t.Errorf("UnifiedDiff = %q, want empty", res.UnifiedDiff)
	}
	if res.LineCount1 != 2 || res.LineCount2 != 2 {
		t.Errorf("line counts = %d/%d", res.LineCount1, res.LineCount2)
	}
}

func TestComputeDiff_Changes(t *testing.T) {
	t.Parallel()

	res := ComputeDiff("old.c", "int a;\nint b;\n", "new.c", "int a;\nint c;\nint d;\n")

	if res.LinesAdded != 2 || res.LinesRemoved != 1 {
		t.Errorf("added/removed = %d/%d, want 2/1", res.LinesAdded, res.LinesRemoved)
	}
	if res.Similarity <= 0 || res.Similarity >= 1 {
		t.Errorf("Similarity = %v, want strictly between 0 and 1", res.Similarity)
	}
	if !strings.Contains(res.UnifiedDiff, "+++ b/new.c") {
		t.Errorf("unified diff missing header:\n%s", res.UnifiedDiff)
	}
}

func TestComputeDiff_Empty(t *testing.T) {
	t.Parallel()

	res := ComputeDiff("a", "", "b", "")
	if res.Similarity != 1 || res.LineCount1 != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	res = ComputeDiff("a", "", "b", "abc")
	if res.Similarity != 0 {
		t.Errorf("Similarity = %v, want 0", res.Similarity)
	}
	if res.LinesAdded != 1 {
		t.Errorf("LinesAdded = %d, want 1", res.LinesAdded)
	}
}

func TestCountLines(t *testing.T) {
	t.Parallel()

	tests := map[string]int{"": 0, "a": 1, "a\n": 1, "a\nb": 2, "a\nb\n": 2, "\n\n": 2}
	for in, want := range tests {
		if got := countLines(in); got != want {
			t.Errorf("countLines(%q) = %d, want %d", in, got, want)
		}
	}
}
